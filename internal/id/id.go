// Package id generates sortable identifiers of the form
// <prefix>_<ULID>. IDs minted by one process are strictly ascending
// for a given prefix.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity prefixes.
const (
	Project    = "prj"
	Session    = "ses"
	Message    = "msg"
	Part       = "prt"
	Permission = "per"
	ToolOutput = "tix"
	Task       = "tsk"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// Ascending mints a new identifier for the given prefix. Successive
// calls within one process return strictly increasing strings: the
// ULID time component orders across milliseconds and the monotonic
// entropy source orders within one.
func Ascending(prefix string) string {
	mu.Lock()
	defer mu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return prefix + "_" + u.String()
}

// Timestamp recovers the mint time embedded in an identifier, so file
// ages are known without a stat.
func Timestamp(s string) (time.Time, error) {
	_, raw, ok := strings.Cut(s, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed id %q", s)
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed id %q: %w", s, err)
	}
	return ulid.Time(u.Time()), nil
}

// Valid reports whether s is a well-formed id with the given prefix.
func Valid(prefix, s string) bool {
	p, raw, ok := strings.Cut(s, "_")
	if !ok || p != prefix {
		return false
	}
	_, err := ulid.ParseStrict(raw)
	return err == nil
}
