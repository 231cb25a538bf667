package msgstream

import (
	"errors"
	"fmt"
	"io"
)

// ErrorCode is the outcome of a framing operation.
type ErrorCode int

const (
	Ok ErrorCode = iota
	Eof
	NullArg
	BufferTooSmall
	HeaderTooSmall
	HeaderTooBig
	HeaderSizeMismatch
	MessageTooBig
	ReadFailed
	WriteFailed
	Truncated

	numCodes
)

type codeInfo struct {
	name string
	msg  string
}

// codeTable is indexed by ErrorCode. The array length pins it to numCodes.
var codeTable = [numCodes]codeInfo{
	Ok:                 {"OK", "no error detected"},
	Eof:                {"EOF", "end of file"},
	NullArg:            {"NULL_ARG", "required argument is nil"},
	BufferTooSmall:     {"SMALL_BUF", "buffer is too small for the message"},
	HeaderTooSmall:     {"SMALL_HDR", "header width is too small"},
	HeaderTooBig:       {"BIG_HDR", "header width is too big"},
	HeaderSizeMismatch: {"HDR_SYNC", "header width does not match the peer"},
	MessageTooBig:      {"BIG_MSG", "message is too big"},
	ReadFailed:         {"SYS_READ_ERR", "transport read failed"},
	WriteFailed:        {"SYS_WRITE_ERR", "transport write failed"},
	Truncated:          {"TRUNC", "stream ended inside a frame"},
}

// Codes returns every code in declaration order.
func Codes() []ErrorCode {
	out := make([]ErrorCode, 0, numCodes)
	for c := Ok; c < numCodes; c++ {
		out = append(out, c)
	}
	return out
}

func (c ErrorCode) valid() bool { return c >= 0 && c < numCodes }

// Name returns the stable identifier of c, e.g. "TRUNC".
func (c ErrorCode) Name() string {
	if !c.valid() {
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
	return codeTable[c].name
}

// Message returns the human-readable description of c.
func (c ErrorCode) Message() string {
	if !c.valid() {
		return "unknown msgstream error code"
	}
	return codeTable[c].msg
}

func (c ErrorCode) String() string { return c.Name() }

// Error lets a bare code be used as a sentinel with errors.Is.
func (c ErrorCode) Error() string { return "msgstream: " + c.Message() }

// Error is the error value returned by every fallible operation in this package.
type Error struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "msgstream: " + e.Code.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a bare ErrorCode by code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the ErrorCode carried by err. A nil error is Ok; foreign errors
// are reported as ReadFailed since they can only come from a transport.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c ErrorCode
	if errors.As(err, &c) {
		return c
	}
	return ReadFailed
}

func newError(code ErrorCode, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func wrapError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

func eofError() *Error {
	return &Error{Code: Eof, Err: io.EOF}
}
