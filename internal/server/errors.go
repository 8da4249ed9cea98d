package server

import "errors"

// Lifecycle and transport errors
var (
	ErrServerClosed         = errors.New("server: closed")
	ErrServerNotRunning     = errors.New("server: not running")
	ErrServerAlreadyRunning = errors.New("server: already running")
	ErrMaxClientsReached    = errors.New("server: client limit reached")
	ErrNoTransports         = errors.New("server: no transport configured")
	ErrInvalidConfig        = errors.New("server: invalid configuration")
	ErrListenerFailed       = errors.New("server: listen failed")
	ErrTransportFailed      = errors.New("server: write reply failed")
)
