package lut

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a table error.
type ErrorKind int

const (
	// NotFound means the file does not exist.
	NotFound ErrorKind = iota + 1

	// WrongFormat means the file is not a valid .cube table.
	WrongFormat

	// OutOfRange means a table size lies outside the format limits.
	OutOfRange

	// WrongRange means a domain maximum is not above its minimum.
	WrongRange
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case WrongFormat:
		return "wrong format"
	case OutOfRange:
		return "out of range"
	case WrongRange:
		return "wrong range"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrNotFound    = errors.New("lut: not found")
	ErrWrongFormat = errors.New("lut: wrong format")
	ErrOutOfRange  = errors.New("lut: out of range")
	ErrWrongRange  = errors.New("lut: wrong range")
)

// Error describes why a table could not be read.
type Error struct {
	Kind ErrorKind

	// Line is the 1-based line of the problem, or 0.
	Line int

	Msg string
	Err error
}

func (e *Error) Error() string {
	s := "lut: " + e.Kind.String()
	if e.Line > 0 {
		s += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrWrongFormat:
		return e.Kind == WrongFormat
	case ErrOutOfRange:
		return e.Kind == OutOfRange
	case ErrWrongRange:
		return e.Kind == WrongRange
	}
	return false
}
