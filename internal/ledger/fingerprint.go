package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"boardfill/internal/domain"
)

// Fingerprint derives the dedup key for an activity identity. Only the source
// kind, the normalized title and the calendar day participate; hours,
// description, tags and the precise timestamp are deliberately ignored.
func Fingerprint(kind domain.SourceKind, title string, day time.Time) string {
	content := fmt.Sprintf("%s:%s:%s", kind, Normalize(title), day.Format("20060102"))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MonthFingerprint derives the key for a monthly parent story. The
// "user_story:" prefix keeps the namespace disjoint from activity
// fingerprints.
func MonthFingerprint(year int, month time.Month) string {
	content := fmt.Sprintf("user_story:%04d%02d", year, int(month))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func activityFingerprint(a domain.Activity) string {
	return Fingerprint(a.Source, a.Title, a.Date)
}
