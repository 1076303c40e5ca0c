package storage

import "fmt"

// Op names the store operation that failed.
type Op string

const (
	OpEnsure Op = "ensure"
	OpAppend Op = "append"
	OpRead   Op = "read"
	OpSend   Op = "send"
	OpRemove Op = "remove"
)

// Error reports a failed store operation.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by Op, so that errors.Is(err, ErrAppend)
// reports any failed append.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op != "" && t.Op == e.Op
}

// Sentinels for errors.Is.
var (
	ErrEnsure = &Error{Op: OpEnsure}
	ErrAppend = &Error{Op: OpAppend}
	ErrRead   = &Error{Op: OpRead}
	ErrSend   = &Error{Op: OpSend}
	ErrRemove = &Error{Op: OpRemove}
)
