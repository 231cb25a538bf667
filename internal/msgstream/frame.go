package msgstream

import (
	"fmt"
	"io"
	"math"
)

const (
	DefaultHeaderWidth    = 4
	DefaultMaxMessageSize = 16 << 20
)

// Config is the framing configuration of one stream. Both ends of a connection
// must use the same HeaderWidth.
type Config struct {
	HeaderWidth    int
	MaxMessageSize uint64
}

func DefaultConfig() Config {
	return Config{
		HeaderWidth:    DefaultHeaderWidth,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Validate checks the width bounds, that MaxMessageSize is representable in
// HeaderWidth bytes, and that it fits in an int so a payload can be buffered.
func (c Config) Validate() error {
	if err := checkWidth(c.HeaderWidth); err != nil {
		return err
	}
	if c.MaxMessageSize > math.MaxInt {
		return newError(MessageTooBig, fmt.Sprintf("max message size %d exceeds %d", c.MaxMessageSize, math.MaxInt))
	}
	if !fits(c.MaxMessageSize, c.HeaderWidth) {
		return newError(HeaderTooSmall, fmt.Sprintf(
			"width %d cannot carry max message size %d (need %d)",
			c.HeaderWidth, c.MaxMessageSize, HeaderWidthFor(c.MaxMessageSize)))
	}
	return nil
}

// Send writes buf[:length] to w as one frame. Nothing is written unless the
// arguments and configuration are valid. A WriteFailed error leaves the stream
// desynchronized.
func Send(w io.Writer, buf []byte, length int, cfg Config) error {
	if w == nil || (buf == nil && length > 0) {
		return newError(NullArg, "")
	}
	if length < 0 || length > len(buf) {
		return newError(BufferTooSmall, fmt.Sprintf("length %d, buffer %d", length, len(buf)))
	}
	size := uint64(length)
	var raw [maxHeaderLen]byte
	hdr, err := encodeHeader(&raw, size, cfg.HeaderWidth)
	if err != nil {
		return err
	}
	if size > cfg.MaxMessageSize {
		return newError(MessageTooBig, fmt.Sprintf("length %d > max %d", size, cfg.MaxMessageSize))
	}

	if err := writeFull(w, hdr); err != nil {
		return wrapError(WriteFailed, err)
	}
	if length > 0 {
		if err := writeFull(w, buf[:length]); err != nil {
			return wrapError(WriteFailed, err)
		}
	}
	return nil
}

// Receive reads one frame from r into dst and returns the payload length.
//
// End of stream before any byte of the frame is Eof; end of stream anywhere
// inside the frame is Truncated. MessageTooBig, BufferTooSmall and
// HeaderSizeMismatch leave the payload unread, so the caller must close r.
func Receive(r io.Reader, dst []byte, cfg Config) (int, error) {
	if r == nil || dst == nil {
		return 0, newError(NullArg, "")
	}
	if err := checkWidth(cfg.HeaderWidth); err != nil {
		return 0, err
	}
	length, err := readHeader(r, cfg)
	if err != nil {
		return 0, err
	}
	if length > uint64(len(dst)) {
		return 0, newError(BufferTooSmall, fmt.Sprintf("length %d, buffer %d", length, len(dst)))
	}
	n := int(length)
	if err := readPayload(r, dst[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// readHeader reads the width marker and length field and checks the length
// against cfg. cfg.HeaderWidth must already be in bounds.
func readHeader(r io.Reader, cfg Config) (uint64, error) {
	var hdr [maxHeaderLen]byte
	_, st, err := readFull(r, hdr[:markerLen])
	switch st {
	case readEOF:
		return 0, eofError()
	case readErr:
		return 0, wrapError(ReadFailed, err)
	}
	if int(hdr[0]) != cfg.HeaderWidth {
		return 0, newError(HeaderSizeMismatch, fmt.Sprintf("peer width %d, local %d", hdr[0], cfg.HeaderWidth))
	}

	field := hdr[markerLen : markerLen+cfg.HeaderWidth]
	if _, st, err = readFull(r, field); st != readDone {
		return 0, readFailure(st, err)
	}
	length := DecodeLength(field)
	if length > cfg.MaxMessageSize || length > math.MaxInt {
		return 0, newError(MessageTooBig, fmt.Sprintf("length %d > max %d", length, cfg.MaxMessageSize))
	}
	return length, nil
}

func readPayload(r io.Reader, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if _, st, err := readFull(r, dst); st != readDone {
		return readFailure(st, err)
	}
	return nil
}

// readFailure maps a failed read inside a frame to its code.
func readFailure(st readStatus, err error) error {
	if st == readEOF {
		return newError(Truncated, "")
	}
	return wrapError(ReadFailed, err)
}
