package flatdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPathNotFound is wrapped by PathError when a path step does not exist
	// and creation was not requested.
	ErrPathNotFound = errors.New("path not found")

	// ErrUnknownOperator is wrapped by OperationError for update operators
	// this package does not implement.
	ErrUnknownOperator = errors.New("unknown update operator")

	// ErrRecordTooLarge is returned when encoding a record whose field stream
	// does not fit the legacy 1-byte record length.
	ErrRecordTooLarge = errors.New("record too large for legacy format")

	// ErrKeyTooLong is returned when encoding a field name longer than 255 bytes.
	ErrKeyTooLong = errors.New("field name too long")

	// ErrInvalidName is returned by adapters for unusable collection names.
	ErrInvalidName = errors.New("invalid collection name")
)

// PathError describes a field path that could not be resolved.
type PathError struct {
	Path string
	Step int // index of the failing step, -1 when the path itself is malformed
	Msg  string
	Err  error
}

func pathErrf(path string, step int, err error, format string, args ...any) error {
	return &PathError{path, step, fmt.Sprintf(format, args...), err}
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func (e *PathError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "path %q", e.Path)
	if e.Step >= 0 {
		fmt.Fprintf(&buf, " at step %d", e.Step)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil && e.Err.Error() != e.Msg {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// OperationError describes an update operator that could not be applied,
// usually because of a badly shaped operand or a target of the wrong kind.
type OperationError struct {
	Op   string
	Path string
	Msg  string
	Err  error
}

func opErrf(op, path string, err error, format string, args ...any) error {
	return &OperationError{op, path, fmt.Sprintf(format, args...), err}
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if e.Path != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.Path)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DataError describes malformed encoded input. DecodeRecords never returns
// it; DecodeRecordsErr does.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var msg string
	if e.Err != nil {
		msg = fmt.Sprintf("%s at offset %d: %v", e.Msg, e.Off, e.Err)
	} else {
		msg = fmt.Sprintf("%s at offset %d", e.Msg, e.Off)
	}
	if n <= prefixLen+suffixLen {
		return fmt.Sprintf("%s: (%d) %x", msg, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	return fmt.Sprintf("%s: (%d) %x...%x", msg, n, p, s)
}

// ValidationError is returned by Store writes rejected by the Validator.
type ValidationError struct {
	Collection string
	Errors     ErrorMap
}

func (e *ValidationError) Error() string {
	return e.Collection + ": validation failed: " + e.Errors.String()
}
