package msgstream

import (
	"errors"
	"fmt"
	"io"
)

type readStage int

const (
	stageHeader readStage = iota
	stagePayload
)

// IncrementalReader assembles frames from a non-blocking transport one read at
// a time. A read that would block is reported as no progress rather than as a
// failure, so Poll can be driven from an event loop or a deadline-bounded conn.
type IncrementalReader struct {
	r   io.Reader
	buf []byte
	cfg Config

	hdr    [maxHeaderLen]byte
	stage  readStage
	nread  int
	msgLen int

	err error
}

// NewIncrementalReader returns a reader that assembles payloads into buf.
func NewIncrementalReader(r io.Reader, buf []byte, cfg Config) (*IncrementalReader, error) {
	if r == nil || buf == nil {
		return nil, newError(NullArg, "")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &IncrementalReader{r: r, buf: buf, cfg: cfg}, nil
}

// Poll performs at most one transport read. When complete is true, buf[:n]
// holds a full payload and the reader is positioned at the next frame. Errors
// are sticky: once Poll fails it keeps returning the same error.
func (ir *IncrementalReader) Poll() (n int, complete bool, err error) {
	if ir.err != nil {
		return 0, false, ir.err
	}
	if ir.stage == stageHeader {
		n, complete, err = ir.pollHeader()
	} else {
		n, complete, err = ir.pollPayload()
	}
	if err != nil {
		ir.err = err
	}
	return n, complete, err
}

// Buffered reports how many bytes of the current frame stage have arrived.
func (ir *IncrementalReader) Buffered() int { return ir.nread }

func (ir *IncrementalReader) pollHeader() (int, bool, error) {
	want := markerLen + ir.cfg.HeaderWidth
	n, rerr := ir.r.Read(ir.hdr[ir.nread:want])
	ir.nread += n

	if ir.nread > 0 && int(ir.hdr[0]) != ir.cfg.HeaderWidth {
		return 0, false, newError(HeaderSizeMismatch, fmt.Sprintf("peer width %d, local %d", ir.hdr[0], ir.cfg.HeaderWidth))
	}
	if ir.nread < want {
		return 0, false, ir.classify(rerr)
	}

	length := DecodeLength(ir.hdr[markerLen:want])
	if length > ir.cfg.MaxMessageSize {
		return 0, false, newError(MessageTooBig, fmt.Sprintf("length %d > max %d", length, ir.cfg.MaxMessageSize))
	}
	if length > uint64(len(ir.buf)) {
		return 0, false, newError(BufferTooSmall, fmt.Sprintf("length %d, buffer %d", length, len(ir.buf)))
	}
	if length == 0 {
		ir.reset()
		return 0, true, nil
	}
	ir.stage = stagePayload
	ir.msgLen = int(length)
	ir.nread = 0
	return 0, false, nil
}

func (ir *IncrementalReader) pollPayload() (int, bool, error) {
	n, rerr := ir.r.Read(ir.buf[ir.nread:ir.msgLen])
	ir.nread += n
	if ir.nread == ir.msgLen {
		size := ir.msgLen
		ir.reset()
		return size, true, nil
	}
	return 0, false, ir.classify(rerr)
}

// classify maps the error of an incomplete read. EOF is clean only at a frame
// boundary, i.e. in the header stage before any byte arrived.
func (ir *IncrementalReader) classify(err error) error {
	switch {
	case err == nil || isWouldBlock(err):
		return nil
	case errors.Is(err, io.EOF):
		if ir.stage == stageHeader && ir.nread == 0 {
			return eofError()
		}
		return newError(Truncated, "")
	default:
		return wrapError(ReadFailed, err)
	}
}

func (ir *IncrementalReader) reset() {
	ir.stage = stageHeader
	ir.nread = 0
	ir.msgLen = 0
}
