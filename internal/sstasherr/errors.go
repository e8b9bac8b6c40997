// Package sstasherr defines the typed error codes that the server surfaces
// to clients as ERROR replies.
package sstasherr

import "fmt"

// Code classifies an Error for logging and for tests that assert on a
// specific failure kind without string-matching messages.
type Code uint8

const (
	CodeInternal           Code = iota // unexpected internal failure
	CodeProtocol                       // malformed framing or argument count
	CodeInvalidCommand                 // unknown verb
	CodeReadOnly                       // write attempted on a read-only connection
	CodeNoSuchStash                    // stash does not exist
	CodeStashClosed                    // stash accessed during/after teardown
	CodeCapacityFull                   // stash at max_key_count
	CodeCannotDropDefault              // DROP default
	CodeNameTooLong                    // stash name > 64 bytes
	CodeKeyTooLong                     // key > 256 bytes
	CodeValueTooLong                   // value > 65536 bytes
	CodeManagerFull                    // stash manager at its stash-count cap
	CodeKeyNotFound                    // GET on an absent or expired key
)

func (c Code) String() string {
	switch c {
	case CodeInternal:
		return "InternalError"
	case CodeProtocol:
		return "ProtocolError"
	case CodeInvalidCommand:
		return "InvalidCommand"
	case CodeReadOnly:
		return "ReadOnly"
	case CodeNoSuchStash:
		return "NoSuchStash"
	case CodeStashClosed:
		return "StashClosed"
	case CodeCapacityFull:
		return "CapacityFull"
	case CodeCannotDropDefault:
		return "CannotDropDefault"
	case CodeNameTooLong:
		return "NameTooLong"
	case CodeKeyTooLong:
		return "KeyTooLong"
	case CodeValueTooLong:
		return "ValueTooLong"
	case CodeManagerFull:
		return "ManagerFull"
	case CodeKeyNotFound:
		return "KeyNotFound"
	default:
		return "Unknown"
	}
}

// Error is the typed error every command handler returns on failure. Its
// Msg is exactly what gets wrapped in an ERROR reply token.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sstash error (%s): %s", e.Code, e.Msg)
}

// New creates an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from a generic error, defaulting to CodeInternal
// for errors that did not originate from this package.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: CodeInternal, Msg: err.Error()}
}

var (
	ErrReadOnly          = New(CodeReadOnly, "read-only mode")
	ErrCannotDropDefault = New(CodeCannotDropDefault, "cannot drop default stash")
	ErrManagerFull       = New(CodeManagerFull, "stash manager is full")
)

func NoSuchStash(name string) *Error {
	return Newf(CodeNoSuchStash, "stash does not exist: %s", name)
}

func StashClosed(name string) *Error {
	return Newf(CodeStashClosed, "stash closed: %s", name)
}

func CapacityFull(name string) *Error {
	return Newf(CodeCapacityFull, "stash is at capacity: %s", name)
}

func NameTooLong(name string) *Error {
	return Newf(CodeNameTooLong, "stash name exceeds max length: %s", name)
}

func KeyTooLong(key string) *Error {
	return Newf(CodeKeyTooLong, "key exceeds max length (%d bytes)", len(key))
}

func ValueTooLong(n int) *Error {
	return Newf(CodeValueTooLong, "value exceeds max length (%d bytes)", n)
}

func KeyNotFound(key string) *Error {
	return Newf(CodeKeyNotFound, "key not found: %s", key)
}

func Protocol(format string, args ...interface{}) *Error {
	return Newf(CodeProtocol, format, args...)
}

func InvalidCommand(verb string) *Error {
	return Newf(CodeInvalidCommand, "invalid command: %s", verb)
}

func Internal(format string, args ...interface{}) *Error {
	return Newf(CodeInternal, format, args...)
}
