package appcache

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a cache that has been closed.
var ErrClosed = errors.New("appcache: cache is closed")

// ErrNotFunction is returned when a wrap target is not a function.
var ErrNotFunction = errors.New("appcache: wrap target must be a function")

// KeyTooLongError reports a generated cache key that exceeds the configured
// limit. Keys are never hashed or truncated to fit: a silently shortened key
// could collide with another entry, so the caller must supply a custom key
// builder instead.
type KeyTooLongError struct {
	Key    string
	Length int
	Limit  int
}

func (e *KeyTooLongError) Error() string {
	return fmt.Sprintf("appcache: generated key is %d bytes, limit is %d (use a custom key builder): %.64q...",
		e.Length, e.Limit, e.Key)
}

// IsKeyTooLong reports whether err is a KeyTooLongError.
func IsKeyTooLong(err error) bool {
	var kerr *KeyTooLongError
	return errors.As(err, &kerr)
}
