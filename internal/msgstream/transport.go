package msgstream

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// maxEmptyIO bounds consecutive (0, nil) results from a transport before the
// call is treated as a failure.
const maxEmptyIO = 100

// ErrWouldBlock may be returned by a non-blocking transport that has no data yet.
var ErrWouldBlock = errors.New("msgstream: operation would block")

// readStatus is the outcome of filling a buffer from a transport.
type readStatus int

const (
	readDone readStatus = iota
	readEOF
	readErr
)

// readFull fills b from r. It returns the number of bytes read and how the loop
// ended; err is the transport error for readErr.
func readFull(r io.Reader, b []byte) (int, readStatus, error) {
	nread := 0
	empty := 0
	for nread < len(b) {
		n, err := r.Read(b[nread:])
		nread += n
		if nread == len(b) {
			return nread, readDone, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nread, readEOF, nil
			}
			return nread, readErr, err
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyIO {
				return nread, readErr, io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
	return nread, readDone, nil
}

// writeFull writes all of b to w, absorbing short writes.
func writeFull(w io.Writer, b []byte) error {
	empty := 0
	for len(b) > 0 {
		n, err := w.Write(b)
		if n > len(b) {
			n = len(b)
		}
		b = b[n:]
		if len(b) == 0 {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrShortWrite) {
			return err
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyIO {
				return io.ErrShortWrite
			}
			continue
		}
		empty = 0
	}
	return nil
}

func isWouldBlock(err error) bool {
	if errors.Is(err, ErrWouldBlock) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ConnTransport adapts a net.Conn so every read and write is bounded by a
// deadline. A timeout surfaces to the framing calls as ReadFailed or WriteFailed.
type ConnTransport struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConnTransport wraps conn. A zero timeout leaves that direction unbounded.
func NewConnTransport(conn net.Conn, readTimeout, writeTimeout time.Duration) *ConnTransport {
	return &ConnTransport{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

func (t *ConnTransport) Read(p []byte) (int, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Read(p)
}

func (t *ConnTransport) Write(p []byte) (int, error) {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Write(p)
}

func (t *ConnTransport) Close() error { return t.conn.Close() }

// Conn returns the wrapped connection.
func (t *ConnTransport) Conn() net.Conn { return t.conn }
