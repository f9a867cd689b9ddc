package xid

import "github.com/google/uuid"

// New returns a prefixed unique identifier, e.g. "so-6ba7b810-...".
// The prefix makes entity ids self-describing in logs and audit rows.
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
