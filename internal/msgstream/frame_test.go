package msgstream

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"testing/iotest"

	"github.com/danmuck/msgstream/internal/testutil/testlog"
)

// oneByteWriter accepts a single byte per call.
type oneByteWriter struct {
	w io.Writer
}

func (o *oneByteWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.w.Write(p[:1])
}

// failAfterWriter accepts limit bytes and then fails.
type failAfterWriter struct {
	limit int
	err   error
	buf   bytes.Buffer
}

func (f *failAfterWriter) Write(p []byte) (int, error) {
	room := f.limit - f.buf.Len()
	if room <= 0 {
		return 0, f.err
	}
	if len(p) > room {
		f.buf.Write(p[:room])
		return room, f.err
	}
	return f.buf.Write(p)
}

type stalledWriter struct{}

func (stalledWriter) Write([]byte) (int, error) { return 0, nil }

type stalledReader struct{}

func (stalledReader) Read([]byte) (int, error) { return 0, nil }

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func encodeFrame(t *testing.T, payload []byte, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Send(&buf, payload, len(payload), cfg); err != nil {
		t.Fatalf("send: %v", err)
	}
	return buf.Bytes()
}

func TestSendReceiveRoundTripEveryWidth(t *testing.T) {
	testlog.Start(t)
	const max = 1000
	sizes := []int{0, 1, 255, 256, 999, max}
	for width := HeaderWidthFor(max); width <= MaxHeaderWidth; width++ {
		cfg := Config{HeaderWidth: width, MaxMessageSize: max}
		var buf bytes.Buffer
		for _, size := range sizes {
			if err := Send(&buf, pattern(size), size, cfg); err != nil {
				t.Fatalf("width=%d size=%d send: %v", width, size, err)
			}
		}
		dst := make([]byte, max)
		for _, size := range sizes {
			n, err := Receive(&buf, dst, cfg)
			if err != nil {
				t.Fatalf("width=%d size=%d receive: %v", width, size, err)
			}
			if n != size || !bytes.Equal(dst[:n], pattern(size)) {
				t.Fatalf("width=%d size=%d payload mismatch (n=%d)", width, size, n)
			}
		}
		if buf.Len() != 0 {
			t.Fatalf("width=%d left %d unread bytes", width, buf.Len())
		}
	}
}

func TestOneByteTransportMatchesFullTransport(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 3, MaxMessageSize: 0x12345}
	sizes := []int{1, 5, 0, 0x12345}

	var wire bytes.Buffer
	w := &oneByteWriter{w: &wire}
	for _, size := range sizes {
		if err := Send(w, pattern(size), size, cfg); err != nil {
			t.Fatalf("size=%d send: %v", size, err)
		}
	}

	var full bytes.Buffer
	for _, size := range sizes {
		if err := Send(&full, pattern(size), size, cfg); err != nil {
			t.Fatalf("size=%d send: %v", size, err)
		}
	}
	if !bytes.Equal(wire.Bytes(), full.Bytes()) {
		t.Fatalf("chunked writes produced different wire bytes")
	}

	r := iotest.OneByteReader(&wire)
	dst := make([]byte, cfg.MaxMessageSize)
	for _, size := range sizes {
		n, err := Receive(r, dst, cfg)
		if err != nil {
			t.Fatalf("size=%d receive: %v", size, err)
		}
		if n != size || !bytes.Equal(dst[:n], pattern(size)) {
			t.Fatalf("size=%d payload mismatch", size)
		}
	}
	if _, err := Receive(r, dst, cfg); !errors.Is(err, Eof) {
		t.Fatalf("expected Eof after last frame, got %v", err)
	}
}

func TestWireLayout(t *testing.T) {
	testlog.Start(t)
	got := encodeFrame(t, []byte("hello"), Config{HeaderWidth: 3, MaxMessageSize: 100})
	want := []byte{3, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(got, want) {
		t.Fatalf("wire mismatch: got=%v want=%v", got, want)
	}
}

func TestZeroLengthFrame(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 10}
	var buf bytes.Buffer
	if err := Send(&buf, nil, 0, cfg); err != nil {
		t.Fatalf("send empty: %v", err)
	}
	if buf.Len() != markerLen+cfg.HeaderWidth {
		t.Fatalf("empty frame size: %d", buf.Len())
	}
	buf.WriteString("next")

	n, err := Receive(&buf, make([]byte, 10), cfg)
	if err != nil || n != 0 {
		t.Fatalf("receive empty: n=%d err=%v", n, err)
	}
	if buf.String() != "next" {
		t.Fatalf("empty frame consumed payload bytes: %q", buf.String())
	}
}

func TestSendMaxMessageSizeBoundary(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 1, MaxMessageSize: 64}
	var buf bytes.Buffer
	if err := Send(&buf, pattern(64), 64, cfg); err != nil {
		t.Fatalf("send max: %v", err)
	}
	buf.Reset()

	err := Send(&buf, pattern(65), 65, cfg)
	if !errors.Is(err, MessageTooBig) {
		t.Fatalf("expected MessageTooBig, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected send wrote %d bytes", buf.Len())
	}
}

func TestSendLengthUnrepresentableInWidth(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 1, MaxMessageSize: 1000}
	var buf bytes.Buffer
	if err := Send(&buf, pattern(256), 256, cfg); !errors.Is(err, MessageTooBig) {
		t.Fatalf("expected MessageTooBig, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected send wrote %d bytes", buf.Len())
	}
}

func TestReceiveTruncatedPayload(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 4, MaxMessageSize: 64}
	frame := encodeFrame(t, pattern(10), cfg)
	hdr := markerLen + cfg.HeaderWidth
	for k := 1; k < 10; k++ {
		_, err := Receive(bytes.NewReader(frame[:hdr+k]), make([]byte, 64), cfg)
		if !errors.Is(err, Truncated) {
			t.Fatalf("k=%d expected Truncated, got %v", k, err)
		}
		if errors.Is(err, Eof) {
			t.Fatalf("k=%d truncation reported as Eof", k)
		}
	}
}

func TestReceiveTruncatedHeader(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 4, MaxMessageSize: 64}
	frame := encodeFrame(t, pattern(10), cfg)
	for k := 1; k < markerLen+cfg.HeaderWidth; k++ {
		_, err := Receive(bytes.NewReader(frame[:k]), make([]byte, 64), cfg)
		if !errors.Is(err, Truncated) {
			t.Fatalf("k=%d expected Truncated, got %v", k, err)
		}
	}
}

func TestReceiveCleanCloseBetweenFrames(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 64}
	r := bytes.NewReader(encodeFrame(t, []byte("one"), cfg))
	dst := make([]byte, 64)
	if _, err := Receive(r, dst, cfg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	_, err := Receive(r, dst, cfg)
	if !errors.Is(err, Eof) {
		t.Fatalf("expected Eof, got %v", err)
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Eof should unwrap to io.EOF: %v", err)
	}
	if CodeOf(err) != Eof {
		t.Fatalf("code: got %v", CodeOf(err))
	}
}

func TestReceiveDataWithFinalEOF(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 64}
	r := iotest.DataErrReader(bytes.NewReader(encodeFrame(t, []byte("last"), cfg)))
	dst := make([]byte, 64)
	n, err := Receive(r, dst, cfg)
	if err != nil || string(dst[:n]) != "last" {
		t.Fatalf("receive: n=%d err=%v", n, err)
	}
	if _, err := Receive(r, dst, cfg); !errors.Is(err, Eof) {
		t.Fatalf("expected Eof, got %v", err)
	}
}

func TestHeaderWidthMismatchIsDetected(t *testing.T) {
	testlog.Start(t)
	frame := encodeFrame(t, pattern(300), Config{HeaderWidth: 4, MaxMessageSize: 1 << 16})
	_, err := Receive(bytes.NewReader(frame), make([]byte, 1<<16), Config{HeaderWidth: 2, MaxMessageSize: 1 << 16})
	if !errors.Is(err, HeaderSizeMismatch) {
		t.Fatalf("expected HeaderSizeMismatch, got %v", err)
	}
}

func TestReceiveMessageTooBigLeavesPayloadUnread(t *testing.T) {
	testlog.Start(t)
	frame := encodeFrame(t, pattern(50), Config{HeaderWidth: 2, MaxMessageSize: 100})
	r := bytes.NewReader(frame)
	_, err := Receive(r, make([]byte, 100), Config{HeaderWidth: 2, MaxMessageSize: 10})
	if !errors.Is(err, MessageTooBig) {
		t.Fatalf("expected MessageTooBig, got %v", err)
	}
	if r.Len() != 50 {
		t.Fatalf("payload consumed: %d bytes left", r.Len())
	}
}

func TestReceiveBufferTooSmall(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 100}
	r := bytes.NewReader(encodeFrame(t, pattern(50), cfg))
	_, err := Receive(r, make([]byte, 49), cfg)
	if !errors.Is(err, BufferTooSmall) {
		t.Fatalf("expected BufferTooSmall, got %v", err)
	}
	if r.Len() != 50 {
		t.Fatalf("payload consumed: %d bytes left", r.Len())
	}
}

func TestNullArguments(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	var buf bytes.Buffer
	if err := Send(nil, []byte("x"), 1, cfg); !errors.Is(err, NullArg) {
		t.Fatalf("nil writer: %v", err)
	}
	if err := Send(&buf, nil, 3, cfg); !errors.Is(err, NullArg) {
		t.Fatalf("nil buffer: %v", err)
	}
	if _, err := Receive(nil, make([]byte, 1), cfg); !errors.Is(err, NullArg) {
		t.Fatalf("nil reader: %v", err)
	}
	if _, err := Receive(&buf, nil, cfg); !errors.Is(err, NullArg) {
		t.Fatalf("nil destination: %v", err)
	}
}

func TestSendLengthBeyondBuffer(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Send(&buf, []byte("abc"), 4, DefaultConfig()); !errors.Is(err, BufferTooSmall) {
		t.Fatalf("expected BufferTooSmall, got %v", err)
	}
	if err := Send(&buf, []byte("abc"), -1, DefaultConfig()); !errors.Is(err, BufferTooSmall) {
		t.Fatalf("expected BufferTooSmall for negative length, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected send wrote %d bytes", buf.Len())
	}
}

func TestHeaderWidthBoundsBeforeIO(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	small := Config{HeaderWidth: 0, MaxMessageSize: 10}
	big := Config{HeaderWidth: MaxHeaderWidth + 1, MaxMessageSize: 10}

	if err := Send(&buf, []byte("x"), 1, small); !errors.Is(err, HeaderTooSmall) {
		t.Fatalf("send small: %v", err)
	}
	if err := Send(&buf, []byte("x"), 1, big); !errors.Is(err, HeaderTooBig) {
		t.Fatalf("send big: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected send wrote %d bytes", buf.Len())
	}

	r := bytes.NewReader([]byte{1, 1, 'x'})
	if _, err := Receive(r, make([]byte, 10), small); !errors.Is(err, HeaderTooSmall) {
		t.Fatalf("receive small: %v", err)
	}
	if _, err := Receive(r, make([]byte, 10), big); !errors.Is(err, HeaderTooBig) {
		t.Fatalf("receive big: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("rejected receive consumed bytes")
	}
}

func TestReadFailedKeepsCause(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 64}

	_, err := Receive(iotest.ErrReader(boom), make([]byte, 64), cfg)
	if !errors.Is(err, ReadFailed) || !errors.Is(err, boom) {
		t.Fatalf("header read: %v", err)
	}

	frame := encodeFrame(t, pattern(20), cfg)
	r := io.MultiReader(bytes.NewReader(frame[:8]), iotest.ErrReader(boom))
	_, err = Receive(r, make([]byte, 64), cfg)
	if !errors.Is(err, ReadFailed) || !errors.Is(err, boom) {
		t.Fatalf("payload read: %v", err)
	}
}

func TestReadWithoutProgressFails(t *testing.T) {
	testlog.Start(t)
	_, err := Receive(stalledReader{}, make([]byte, 8), DefaultConfig())
	if !errors.Is(err, ReadFailed) || !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("expected ReadFailed/ErrNoProgress, got %v", err)
	}
}

func TestWriteFailedKeepsCause(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	cfg := Config{HeaderWidth: 2, MaxMessageSize: 64}

	w := &failAfterWriter{limit: 1, err: boom}
	if err := Send(w, pattern(10), 10, cfg); !errors.Is(err, WriteFailed) || !errors.Is(err, boom) {
		t.Fatalf("header write: %v", err)
	}

	w = &failAfterWriter{limit: 6, err: boom}
	if err := Send(w, pattern(10), 10, cfg); !errors.Is(err, WriteFailed) || !errors.Is(err, boom) {
		t.Fatalf("payload write: %v", err)
	}
	if w.buf.Len() != 6 {
		t.Fatalf("partial frame size: %d", w.buf.Len())
	}
}

func TestWriteWithoutProgressFails(t *testing.T) {
	testlog.Start(t)
	err := Send(stalledWriter{}, []byte("x"), 1, DefaultConfig())
	if !errors.Is(err, WriteFailed) || !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected WriteFailed/ErrShortWrite, got %v", err)
	}
}

func TestRoundTripOverPipe(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer b.Close()

	cfg := Config{HeaderWidth: 4, MaxMessageSize: 1 << 20}
	msgs := [][]byte{[]byte("hello"), {}, pattern(70000)}

	done := make(chan error, 1)
	go func() {
		defer a.Close()
		for _, m := range msgs {
			if err := Send(a, m, len(m), cfg); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	dst := make([]byte, cfg.MaxMessageSize)
	for i, want := range msgs {
		n, err := Receive(b, dst, cfg)
		if err != nil {
			t.Fatalf("msg %d receive: %v", i, err)
		}
		if !bytes.Equal(dst[:n], want) {
			t.Fatalf("msg %d mismatch", i)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("sender: %v", err)
	}
	if _, err := Receive(b, dst, cfg); !errors.Is(err, Eof) {
		t.Fatalf("expected Eof after close, got %v", err)
	}
}

func TestSendHeaderMatchesEncodeLength(t *testing.T) {
	testlog.Start(t)
	for width := 2; width <= MaxHeaderWidth; width++ {
		cfg := Config{HeaderWidth: width, MaxMessageSize: 1000}
		frame := encodeFrame(t, pattern(300), cfg)
		field, err := EncodeLength(300, width)
		if err != nil {
			t.Fatalf("width=%d encode: %v", width, err)
		}
		if frame[0] != byte(width) || !bytes.Equal(frame[markerLen:markerLen+width], field) {
			t.Fatalf("width=%d header %v, field %v", width, frame[:markerLen+width], field)
		}
	}

	// Send and EncodeLength reject the same unrepresentable length.
	var buf bytes.Buffer
	_, encErr := EncodeLength(256, 1)
	sendErr := Send(&buf, pattern(256), 256, Config{HeaderWidth: 1, MaxMessageSize: 255})
	if CodeOf(encErr) != MessageTooBig || CodeOf(sendErr) != CodeOf(encErr) {
		t.Fatalf("encode=%v send=%v", encErr, sendErr)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected send wrote %d bytes", buf.Len())
	}
}
