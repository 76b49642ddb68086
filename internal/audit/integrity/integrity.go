// Package integrity computes and verifies tamper-evidence digests over audit
// events. The digest covers a canonical, order-stable subset of fields;
// anything outside that subset may change after creation without breaking
// verification.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitacora/internal/audit"
)

// Digest returns the hex-encoded SHA-256 over the event's canonical fields:
// type, category, description, event timestamp, actor ID, and the structured
// payload. Payload keys are sorted and values JSON-encoded so the result is
// stable regardless of map iteration order.
func Digest(e audit.Event) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteByte('|')
	b.WriteString(string(e.Category))
	b.WriteByte('|')
	b.WriteString(e.Description)
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.ActorID)
	b.WriteByte('|')
	b.WriteString(canonicalPayload(e.Payload))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest and compares it against the stored value.
// A mismatch is reported, never corrected: the tampered record remains
// evidence, and re-stamping requires the explicit audited modification path.
func Verify(e audit.Event) bool {
	if e.IntegrityDigest == "" {
		return false
	}
	return e.IntegrityDigest == Digest(e)
}

// canonicalPayload serializes a payload map deterministically. Each value is
// JSON-encoded individually; a value that cannot be marshalled degrades to
// fmt.Sprintf so one odd entry does not poison the whole digest.
func canonicalPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		if raw, err := json.Marshal(payload[k]); err == nil {
			b.Write(raw)
		} else {
			fmt.Fprintf(&b, "%v", payload[k])
		}
	}
	return b.String()
}
