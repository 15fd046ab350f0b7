package engine

import "fmt"

// FormatErrorKind discriminates configuration-format failures.
type FormatErrorKind int

const (
	// ParseFailure marks a document that is not valid JSON or whose fields
	// do not decode into the declared types.
	ParseFailure FormatErrorKind = iota
	// MissingField marks a document lacking one of the required top-level
	// keys (a key set to null counts as missing).
	MissingField
)

func (k FormatErrorKind) String() string {
	switch k {
	case ParseFailure:
		return "parse failure"
	case MissingField:
		return "missing field"
	default:
		return "unknown"
	}
}

// FormatError reports a malformed or incomplete engine configuration
// document. It is terminal: the document must be fixed, not retried.
type FormatError struct {
	Kind  FormatErrorKind
	Field string // required key name, set when Kind is MissingField
	Err   error  // underlying decode error, set when Kind is ParseFailure
}

func (e *FormatError) Error() string {
	if e.Kind == MissingField {
		return fmt.Sprintf("engine config: missing field %q", e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("engine config: %v", e.Err)
	}
	return "engine config: " + e.Kind.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// NotFoundError reports a missing config or per-rank artifact file in an
// engine directory. It wraps the underlying filesystem error, so
// errors.Is(err, fs.ErrNotExist) holds.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine file %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("engine file %s: not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }
