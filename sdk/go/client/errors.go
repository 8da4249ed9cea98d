package client

import (
	"errors"
	"fmt"

	"github.com/nslaift/nslaift/internal/core/protocol"
)

// Client-specific errors
var (
	ErrClientClosed      = errors.New("client is closed")
	ErrUnsupportedScheme = errors.New("unsupported address scheme")
	ErrInvalidCommand    = errors.New("invalid command line")
	ErrInvalidReply      = errors.New("invalid reply")
)

// ReplyError is returned by the helpers when the server answers with a
// non-zero status byte
type ReplyError struct {
	Command string
	Code    protocol.ErrorCode
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("command %q failed: %s (%c)", e.Command, e.Code, byte(e.Code))
}
