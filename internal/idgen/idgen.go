// Package idgen formats and parses the engine's two id shapes: entry ids
// (kb-NNNNN) and opaque random ids used for non-entry records.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

// EntryIDPattern matches a well-formed entry id.
var EntryIDPattern = regexp.MustCompile(`^kb-\d{5,}$`)

// FormatEntryID renders the zero-padded 5-digit form. For n > 99999 it simply
// grows past 5 digits rather than truncating, so distinct ids never collide
// (see SPEC_FULL.md §C on the kb-99999 overflow open question).
func FormatEntryID(n int64) string {
	return fmt.Sprintf("kb-%05d", n)
}

// ParseEntryID extracts the numeric sequence from a well-formed entry id.
func ParseEntryID(id string) (int64, bool) {
	if !EntryIDPattern.MatchString(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[3:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// New returns a random opaque id, used for non-entry records (threads,
// ingested-file rows keyed by path instead, version rows keyed by
// entry_id+version, etc. — exposed for any record that needs one).
func New() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
