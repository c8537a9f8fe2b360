// Package ids generates and parses the typed public identifiers
// (spec.md §3.1) that cross every component boundary in place of
// internal numeric primary keys.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix identifies the entity class encoded in a public identifier.
type Prefix string

const (
	PrefixUser      Prefix = "USR"
	PrefixBuyer     Prefix = "BYR"
	PrefixBuilder   Prefix = "BLD"
	PrefixCommunity Prefix = "CMY"
	PrefixProperty  Prefix = "PRP"
	PrefixJob       Prefix = "JOB"
	PrefixChange    Prefix = "CHG"
)

const randomAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Clock is the time source used to timestamp new identifiers; a package
// variable (rather than a direct time.Now() call) so tests can pin it.
var Clock = time.Now

// New returns a new identifier of the form PREFIX-TIMESTAMP-RANDOM6,
// e.g. BLD-1699564234-A7K9M2.
func New(p Prefix) string {
	return fmt.Sprintf("%s-%d-%s", p, Clock().Unix(), randomSuffix(6))
}

// randomSuffix derives n alphabet characters from a fresh UUIDv4's random
// bits, one UUID byte per character reduced modulo the alphabet size, so
// the six-character suffix New uses carries 30 random bits.
func randomSuffix(n int) string {
	id := uuid.New()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = randomAlphabet[int(id[i%len(id)])%len(randomAlphabet)]
	}
	return string(out)
}

// TypeOf returns the Prefix encoded in id, and whether id is well-formed.
func TypeOf(id string) (Prefix, bool) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 {
		return "", false
	}
	switch Prefix(parts[0]) {
	case PrefixUser, PrefixBuyer, PrefixBuilder, PrefixCommunity, PrefixProperty, PrefixJob, PrefixChange:
		return Prefix(parts[0]), true
	default:
		return "", false
	}
}

// HasPrefix reports whether id is a well-formed identifier of type p.
func HasPrefix(id string, p Prefix) bool {
	got, ok := TypeOf(id)
	return ok && got == p
}
