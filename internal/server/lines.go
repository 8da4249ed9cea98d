package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
	"github.com/nslaift/nslaift/pkg/generic"
)

const (
	readBufferSize = 4096
	// pooled line buffers that grew past this are not kept
	maxPooledLine = 64 * 1024
)

var lineBuffers = generic.NewPool(func() *[]byte {
	b := make([]byte, 0, readBufferSize)
	return &b
}, func(b *[]byte) *[]byte {
	if cap(*b) > maxPooledLine {
		fresh := make([]byte, 0, readBufferSize)
		return &fresh
	}
	*b = (*b)[:0]
	return b
})

// serveLines answers every newline-terminated command read from r with a
// single reply byte written to w. A line longer than MaxLineSize is
// discarded up to its terminator and answered with ErrorCodeMalformed. It
// returns when r is exhausted, ctx is cancelled or a write fails.
func (s *Server) serveLines(ctx context.Context, session *Session, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, min(readBufferSize, s.config.MaxLineSize))
	buf := lineBuffers.Get()
	defer lineBuffers.Put(buf)

	reply := make([]byte, 1)
	for {
		line, tooLong, err := s.readLine(reader, buf)
		if err != nil && len(line) == 0 && !tooLong {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read command")
		}
		if ctx.Err() != nil {
			return nil
		}

		if tooLong {
			atomic.AddInt64(&session.Commands, 1)
			reply[0] = s.rejectLine(session)
		} else {
			reply[0] = s.execute(ctx, session, string(line))
		}
		if _, werr := w.Write(reply); werr != nil {
			return errors.Wrap(ErrTransportFailed, werr.Error())
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read command")
		}
	}
}

// readLine reads up to the next '\n' into buf. Once the line exceeds
// MaxLineSize the rest of it is consumed without being kept.
func (s *Server) readLine(r *bufio.Reader, buf *[]byte) ([]byte, bool, error) {
	limit := s.config.MaxLineSize
	tooLong := false
	*buf = (*buf)[:0]
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			*buf = append(*buf, chunk...)
			// room for a "\r\n" terminator
			if len(*buf) > limit+2 {
				tooLong = true
				*buf = (*buf)[:0]
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if tooLong {
			return nil, true, err
		}
		line := bytes.TrimRight(*buf, "\r\n")
		if len(line) > limit {
			return nil, true, err
		}
		return line, false, err
	}
}

func (s *Server) rejectLine(session *Session) byte {
	s.logger.Warn("Command line too long",
		log.String("client_id", session.ID),
		log.Int("max_line_size", s.config.MaxLineSize))
	if s.executor.Mode() == protocol.ReplyAck {
		return byte(protocol.ErrorCodeSuccess)
	}
	return byte(protocol.ErrorCodeMalformed)
}
