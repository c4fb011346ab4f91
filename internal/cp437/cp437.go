// Package cp437 encodes and decodes ZIP archive member names in IBM code
// page 437, per spec.md §1 ("UTF-8 filenames in headers" is an explicit
// non-goal; code page 437 only, for legacy compatibility) and §6.
//
// golang.org/x/text ships as an indirect dependency across the pack
// (pulled in by viper/afero in ossyrian-mintyparse's go.mod); its
// encoding/charmap package is the ecosystem's standard home for legacy
// code pages, so it is wired in here directly rather than hand-rolling a
// 256-entry translation table.
package cp437

import (
	"golang.org/x/text/encoding/charmap"
)

// Encode converts a UTF-8 name to its code page 437 byte representation.
// A name containing a character with no CP437 representation makes Encode
// return an error; nothing is replaced.
func Encode(name string) ([]byte, error) {
	return charmap.CodePage437.NewEncoder().Bytes([]byte(name))
}

// Decode converts CP437 bytes (as stored on the wire in a ZIP header) back
// to a UTF-8 string.
func Decode(b []byte) (string, error) {
	out, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
