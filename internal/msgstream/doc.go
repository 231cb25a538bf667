// Package msgstream turns an ordered byte stream into discrete messages.
//
// Wire format per frame:
//
//	[width: 1 byte][length: width bytes, big-endian][payload: length bytes]
//
// The width byte lets a receiver configured with a different header width
// detect the mismatch instead of decoding a wrong length.
//
// Ownership boundary:
// - error codes and their message table
// - header encode/decode
// - blocking Send/Receive and the Stream wrapper
// - incremental receive for non-blocking transports
//
// The package never logs and never retries; every call returns one outcome.
package msgstream
