package upload

import (
	"strings"

	"github.com/google/uuid"
)

// StorageKey identifies an upload in the object store.
type StorageKey struct {
	Prefix   string
	Suffix   string
	Filename string
}

// String renders the key as "{prefix}/{suffix}_{filename}". An empty prefix
// renders without the leading separator.
func (k StorageKey) String() string {
	name := k.Suffix + "_" + k.Filename
	if k.Prefix == "" {
		return name
	}
	return k.Prefix + "/" + name
}

// NewKey derives a fresh storage key for filename under prefix. Every call
// draws a new random suffix, so identical filenames never share a key.
func NewKey(filename string, prefix string) StorageKey {
	return StorageKey{
		Prefix:   strings.TrimRight(prefix, "/"),
		Suffix:   uuid.NewString(),
		Filename: Sanitize(filename),
	}
}

// Sanitize replaces every byte outside [A-Za-z0-9._-] with '_'. The result
// has the same byte length as name.
func Sanitize(name string) string {
	out := []byte(name)
	for i, c := range out {
		if !isKeySafe(c) {
			out[i] = '_'
		}
	}
	return string(out)
}

func isKeySafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}
