// Package reprl implements the Runner (spec.md §4.5, §6.2, §6.4): a
// persistent, cooperating child process that evaluates scripts and
// resets its interpreter state between runs, communicating over a
// fixed pipe-based wire protocol plus the shared-memory edge bitmap
// from internal/coverage.
package reprl

import "encoding/binary"

// RequestToken is the literal 4-byte token the parent writes to the
// control channel ahead of every request's length field (spec.md §6.2).
const RequestToken = "cexe"

// Fixed file-descriptor slots the child inherits via ExtraFiles, in
// order. Go's exec.Cmd assigns ExtraFiles sequential descriptors
// starting at 3, so a child binary written against this protocol must
// read/write fds 3..6 rather than the fixed 100..103 REPRL
// conventionally uses elsewhere.
const (
	childControlReadFD  = 3 // requests: parent writes, child reads
	childControlWriteFD = 4 // status words: child writes, parent reads
	childDataReadFD     = 5 // script bytes: parent writes, child reads
	childDataWriteFD    = 6 // fuzzout stream: child writes, parent reads
)

// Status word bit layout (spec.md §6.2), waitpid-style within a
// little-endian uint32: the low byte follows the same exited-vs-signaled
// convention as POSIX wait status (signaled iff bits 0-6 are nonzero),
// with one extra out-of-band bit the protocol adds for a parent-detected
// timeout:
//
//	bits 0-6   signal number; nonzero means the child was signaled
//	bit  7     coredump flag, unused here
//	bits 8-15  exit code, meaningful when bits 0-6 are all zero
//	bit  16    didTimeout (set by the parent, never by the child)
//	bits 17-31 reserved, must be zero
const (
	statusSignalMask    = 0x7F
	statusExitCodeMask  = 0xFF
	statusExitCodeShift = 8
	statusDidTimeout    = 1 << 16
)

type statusWord uint32

func decodeStatusWord(w uint32) statusWord { return statusWord(w) }

func (s statusWord) didTimeout() bool { return uint32(s)&statusDidTimeout != 0 }
func (s statusWord) didSignal() bool  { return uint32(s)&statusSignalMask != 0 }
func (s statusWord) didExit() bool    { return !s.didSignal() }
func (s statusWord) signal() int      { return int(uint32(s) & statusSignalMask) }
func (s statusWord) exitCode() int {
	return int((uint32(s) >> statusExitCodeShift) & statusExitCodeMask)
}

func encodeStatusWord(s statusWord) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(s))
	return buf
}

// encodeLength64 encodes a script length as the 64-bit little-endian
// field that follows the request token.
func encodeLength64(n int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}
