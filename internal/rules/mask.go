package rules

import (
	"hash/fnv"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maskDomain namespaces history mask hashes. The version suffix allows a
// future algorithm migration without colliding with existing records.
const maskDomain = "inappkit/history/v1"

// Mask is a deterministic hash over an (event type, activity id) pair.
// Two masks are equal iff they produce the same decimal value; history
// records are matched by mask, never by free text. Collisions are treated
// as a non-issue at this hash width.
type Mask uint32

// NewMask hashes an event type and activity id into a mask.
// Inputs are NFC-normalized first so visually identical strings produced
// by different keyboards or backends hash identically. A null byte
// separates domain and fields to keep boundaries unambiguous.
func NewMask(eventType, activityID string) Mask {
	h := fnv.New32a()
	h.Write([]byte(maskDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(eventType)))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(activityID)))
	return Mask(h.Sum32())
}

// String returns the mask's decimal form, the canonical comparison value.
func (m Mask) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// ActivityID derives the activity id from a message id: the first two
// '#'-separated segments. A message id "X#2#abc" belongs to activity
// "X#2"; an id with a single segment is its own activity.
func ActivityID(messageID string) string {
	parts := strings.SplitN(messageID, "#", 3)
	if len(parts) >= 2 {
		return parts[0] + "#" + parts[1]
	}
	return parts[0]
}
