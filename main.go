package main

import (
	"os"

	"github.com/joshhsoj1902/deck-achievements/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
