// Package signature fingerprints database errors.
//
// A signature is a pure function of the error kind and the normalized
// message, so messages that differ only in numbers or quoted literals share
// a fingerprint across calls and process restarts.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Length is the number of hex characters in a signature.
const Length = 12

// Placeholders substituted during normalization.
const (
	NumberToken = "<n>"
	ValueToken  = "<v>"
)

// Signature is a fixed-length lowercase hex fingerprint.
type Signature string

var (
	digitRun = regexp.MustCompile(`[0-9]+`)
	quoted   = regexp.MustCompile("'[^']*'|\"[^\"]*\"|`[^`]*`")
	hexSig   = regexp.MustCompile(`^[0-9a-f]{12}$`)
)

// Normalize lowercases raw, collapses digit runs to NumberToken and then
// quoted substrings to ValueToken. The order is fixed: a quoted literal
// containing digits still collapses to a single ValueToken.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = digitRun.ReplaceAllString(s, NumberToken)
	s = quoted.ReplaceAllString(s, ValueToken)
	return s
}

// Generate returns the signature of (kind, raw).
func Generate(kind, raw string) Signature {
	sum := sha256.Sum256([]byte(kind + ":" + Normalize(raw)))
	return Signature(hex.EncodeToString(sum[:])[:Length])
}

// Valid reports whether s has signature shape.
func Valid(s string) bool {
	return hexSig.MatchString(s)
}

func (s Signature) String() string {
	return string(s)
}
