package backend

import (
	"errors"

	"github.com/joshhsoj1902/deck-achievements/internal/steam"
)

var (
	// ErrNoAPIKey is terminal: nothing works against the Web API without a key.
	ErrNoAPIKey = steam.ErrMissingAPIKey
	// ErrNoSteamID means neither settings nor the local client name a user.
	ErrNoSteamID = errors.New("steam id is not configured and no local login was found")
	// ErrProgressInProgress asks the caller to retry later.
	ErrProgressInProgress = steam.ErrProgressInProgress
	ErrInvalidArgument    = errors.New("invalid argument")
)
