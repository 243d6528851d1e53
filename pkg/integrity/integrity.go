// Package integrity computes tamper-evidence hashes over financial
// records. Field order is fixed by the caller, never derived from a
// serialization library, so a hash computed today can be recomputed and
// compared years later regardless of runtime or library versions.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Field is a single named value included in a hash.
type Field struct {
	Name  string
	Value string
}

func String(name, value string) Field {
	return Field{Name: name, Value: value}
}

func Int64(name string, value int64) Field {
	return Field{Name: name, Value: strconv.FormatInt(value, 10)}
}

// Sum hashes the fields in the exact order given as
// "name=value\n" pairs and returns the hex-encoded SHA-256 digest.
func Sum(fields ...Field) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{'='})
		h.Write([]byte(f.Value))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest for fields and compares it to want.
func Verify(want string, fields ...Field) bool {
	return want != "" && Sum(fields...) == want
}
