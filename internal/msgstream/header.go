package msgstream

import "fmt"

const (
	MinHeaderWidth = 1
	MaxHeaderWidth = 8

	// markerLen is the width marker byte that precedes the length field.
	markerLen = 1
	// maxHeaderLen is the largest marker + length header on the wire.
	maxHeaderLen = markerLen + MaxHeaderWidth
)

func checkWidth(width int) error {
	if width < MinHeaderWidth {
		return newError(HeaderTooSmall, fmt.Sprintf("width %d < %d", width, MinHeaderWidth))
	}
	if width > MaxHeaderWidth {
		return newError(HeaderTooBig, fmt.Sprintf("width %d > %d", width, MaxHeaderWidth))
	}
	return nil
}

// fits reports whether length is representable in width big-endian bytes.
func fits(length uint64, width int) bool {
	if width >= 8 {
		return true
	}
	return length < uint64(1)<<(8*uint(width))
}

// EncodeLength returns length as a width-byte big-endian field.
func EncodeLength(length uint64, width int) ([]byte, error) {
	var hdr [maxHeaderLen]byte
	b, err := encodeHeader(&hdr, length, width)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b[markerLen:]...), nil
}

func putLength(b []byte, length uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(length)
		length >>= 8
	}
}

// DecodeLength reads a big-endian length field. Callers pass exactly the
// configured width; at most 8 bytes are significant.
func DecodeLength(b []byte) uint64 {
	var n uint64
	for _, v := range b {
		n = n<<8 | uint64(v)
	}
	return n
}

// HeaderWidthFor returns the smallest header width able to carry maxMessageSize.
func HeaderWidthFor(maxMessageSize uint64) int {
	width := MinHeaderWidth
	for !fits(maxMessageSize, width) {
		width++
	}
	return width
}

// encodeHeader checks width and length, then writes marker + length into dst
// and returns the used prefix.
func encodeHeader(dst *[maxHeaderLen]byte, length uint64, width int) ([]byte, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	if !fits(length, width) {
		return nil, newError(MessageTooBig, fmt.Sprintf("length %d does not fit in %d bytes", length, width))
	}
	dst[0] = byte(width)
	putLength(dst[markerLen:markerLen+width], length)
	return dst[:markerLen+width], nil
}
