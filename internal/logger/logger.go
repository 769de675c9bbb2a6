package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is usable before Init is called.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init sets the log level and, when file is non-empty, also writes to a
// rotating log file.
func Init(level string, file string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.WithField("level", level).Warn("Unknown log level, falling back to info")
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if file == "" {
		Log.SetOutput(os.Stdout)
		return
	}

	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    5, // megabytes
		MaxAge:     3,
		MaxBackups: 3,
	}
	Log.SetOutput(io.MultiWriter(os.Stdout, rotating))
	Log.WithField("file", file).Debug("File logging enabled")
}

// Silence discards all log output. Used by the CLI for quiet commands and by tests.
func Silence() {
	Log.SetOutput(io.Discard)
}

// UseStderr moves log output off stdout so command output stays clean.
func UseStderr() {
	Log.SetOutput(os.Stderr)
}
