package runtime

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Generate after Close.
var ErrSessionClosed = errors.New("runtime: session closed")

// UnsupportedWordListError reports a stop- or bad-words value whose concrete
// type is outside the accepted variant set. It is terminal: the caller
// supplied the wrong shape and retrying cannot help.
type UnsupportedWordListError struct {
	Field string
	Value any
}

func (e *UnsupportedWordListError) Error() string {
	return fmt.Sprintf("%s: unsupported word list type %T (want *wordlist.Array, wordlist.Array, []int32, or [][]int32)",
		e.Field, e.Value)
}
