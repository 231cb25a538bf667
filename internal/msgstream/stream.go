package msgstream

import "io"

// Stream binds a transport to a validated Config. It owns its scratch buffer
// and does no locking: use at most one sender and one receiver at a time.
type Stream struct {
	r   io.Reader
	w   io.Writer
	cfg Config

	scratch []byte
}

// New validates cfg and returns a duplex stream over rw.
func New(rw io.ReadWriter, cfg Config) (*Stream, error) {
	if rw == nil {
		return nil, newError(NullArg, "")
	}
	return newStream(rw, rw, cfg)
}

// NewReader returns a receive-only stream.
func NewReader(r io.Reader, cfg Config) (*Stream, error) {
	if r == nil {
		return nil, newError(NullArg, "")
	}
	return newStream(r, nil, cfg)
}

// NewWriter returns a send-only stream.
func NewWriter(w io.Writer, cfg Config) (*Stream, error) {
	if w == nil {
		return nil, newError(NullArg, "")
	}
	return newStream(nil, w, cfg)
}

func newStream(r io.Reader, w io.Writer, cfg Config) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stream{r: r, w: w, cfg: cfg}, nil
}

func (s *Stream) Config() Config { return s.cfg }

// Send writes p as one frame.
func (s *Stream) Send(p []byte) error {
	return Send(s.w, p, len(p), s.cfg)
}

// Receive reads one frame into dst.
func (s *Stream) Receive(dst []byte) (int, error) {
	return Receive(s.r, dst, s.cfg)
}

// scratchChunk bounds how far Next grows its buffer ahead of received bytes.
const scratchChunk = 64 << 10

// Next reads one frame into the stream's scratch buffer. The buffer grows as
// payload bytes arrive, so a declared length alone never allocates more than
// scratchChunk beyond what the peer sent. The returned slice is only valid
// until the next call to Next.
func (s *Stream) Next() ([]byte, error) {
	if s.r == nil {
		return nil, newError(NullArg, "")
	}
	length, err := readHeader(s.r, s.cfg)
	if err != nil {
		return nil, err
	}
	n := int(length)
	buf := s.scratch[:0]
	for len(buf) < n {
		step := min(n-len(buf), max(len(buf), scratchChunk))
		if cap(buf)-len(buf) < step {
			grown := make([]byte, len(buf), len(buf)+step)
			copy(grown, buf)
			buf = grown
		}
		err := readPayload(s.r, buf[len(buf):len(buf)+step])
		s.scratch = buf[:0]
		if err != nil {
			return nil, err
		}
		buf = buf[:len(buf)+step]
	}
	s.scratch = buf[:0]
	return buf, nil
}
