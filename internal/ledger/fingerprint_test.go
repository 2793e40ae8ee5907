package ledger

import (
	"testing"
	"time"

	"boardfill/internal/domain"
)

var feb19 = time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)

func TestFingerprintDeterminism(t *testing.T) {
	a := Fingerprint(domain.SourceOutlook, "Reunião", feb19)
	b := Fingerprint(domain.SourceOutlook, "Reunião", feb19)
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", a)
	}
}

func TestFingerprintAccentCaseWhitespaceInsensitive(t *testing.T) {
	base := Fingerprint(domain.SourceOutlook, "Verificação", feb19)
	for _, title := range []string{"verificacao", "  Verificação  ", "VERIFICACAO"} {
		if got := Fingerprint(domain.SourceOutlook, title, feb19); got != base {
			t.Fatalf("fingerprint for %q differs from canonical form", title)
		}
	}
}

func TestFingerprintDistinctness(t *testing.T) {
	base := Fingerprint(domain.SourceOutlook, "Reunião", feb19)
	if Fingerprint(domain.SourceGit, "Reunião", feb19) == base {
		t.Fatal("source kind must change the fingerprint")
	}
	if Fingerprint(domain.SourceOutlook, "Outro título", feb19) == base {
		t.Fatal("title must change the fingerprint")
	}
	if Fingerprint(domain.SourceOutlook, "Reunião", feb19.AddDate(0, 0, 1)) == base {
		t.Fatal("date must change the fingerprint")
	}
}

func TestFingerprintIgnoresNonIdentityFields(t *testing.T) {
	a := domain.Activity{Title: "Reunião", Source: domain.SourceOutlook, Date: feb19, Hours: 1}
	b := domain.Activity{
		Title:       "Reunião",
		Source:      domain.SourceOutlook,
		Date:        feb19.Add(10 * time.Hour), // same calendar day
		Hours:       8,
		Description: "completely different",
		Tags:        []string{"x", "y"},
		StartedAt:   time.Date(2026, 2, 19, 14, 30, 0, 0, time.UTC),
	}
	if activityFingerprint(a) != activityFingerprint(b) {
		t.Fatal("hours/description/tags/timestamp must not change the fingerprint")
	}
}

func TestMonthFingerprintNamespace(t *testing.T) {
	if MonthFingerprint(2026, time.February) != MonthFingerprint(2026, time.February) {
		t.Fatal("month fingerprint not stable")
	}
	if MonthFingerprint(2026, time.February) == MonthFingerprint(2026, time.March) {
		t.Fatal("months must hash differently")
	}
	// An activity can never collide with a month key.
	if MonthFingerprint(2026, time.February) == Fingerprint(domain.SourceOutlook, "user_story:202602", feb19) {
		t.Fatal("month namespace collided with activity namespace")
	}
}
