package evidence

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

func TestHash_SameInputSameMillisecond(t *testing.T) {
	c := content.Text("No confirmed Ebola cases in Sierra Leone")
	at := time.UnixMilli(1767225600123)

	a, err := Hash(c, at)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, _ := Hash(c, at.Add(400*time.Microsecond))
	if a != b {
		t.Errorf("hashes differ within the same millisecond: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestHash_DifferentInputs(t *testing.T) {
	at := time.UnixMilli(1767225600123)
	base, _ := Hash(content.Text("hello"), at)

	later, _ := Hash(content.Text("hello"), at.Add(time.Millisecond))
	if later == base {
		t.Error("different timestamps produced the same hash")
	}

	other, _ := Hash(content.Text("hello!"), at)
	if other == base {
		t.Error("different text produced the same hash")
	}

	// Moving text into the caption must change the fingerprint.
	moved, _ := Hash(content.Content{Kind: content.KindText, Caption: "hello"}, at)
	if moved == base {
		t.Error("text and caption are not distinguished")
	}
}

func TestCanonical_Stable(t *testing.T) {
	got, err := Canonical(content.Content{Kind: content.KindImage, Caption: "cap"})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := `{"kind":"image","text":"","caption":"cap"}`
	if string(got) != want {
		t.Errorf("Canonical = %s, want %s", got, want)
	}
}

var verificationIDPattern = regexp.MustCompile(`^VER-\d{13}-[0-9a-z]{9}$`)

func TestNewVerificationID(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewVerificationID(now)
		if err != nil {
			t.Fatalf("NewVerificationID: %v", err)
		}
		if !verificationIDPattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, verificationIDPattern)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewCaseID(t *testing.T) {
	id, err := NewCaseID(time.Date(2026, 4, 27, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewCaseID: %v", err)
	}
	if !regexp.MustCompile(`^SL-20260427-\d{4}$`).MatchString(id) {
		t.Errorf("NewCaseID = %q, want SL-20260427-NNNN", id)
	}
}

func TestAuditChain(t *testing.T) {
	now := time.Now()
	first, err := NewAuditEntry("VER-1-abc", EventVerificationCreated, "h", map[string]string{"label": "UNVERIFIED"}, "", now)
	if err != nil {
		t.Fatalf("NewAuditEntry: %v", err)
	}
	second, _ := NewAuditEntry("VER-1-abc", EventModerationEnqueued, "h", nil, first.EntryHash, now)
	third, _ := NewAuditEntry("VER-1-abc", EventModerationResolved, "h", map[string]string{"label": "FALSE"}, second.EntryHash, now)

	chain := []AuditEntry{first, second, third}
	if err := VerifyChain(chain); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	tampered := append([]AuditEntry(nil), chain...)
	tampered[2].Payload = []byte(`{"label":"TRUE"}`)
	if err := VerifyChain(tampered); !errors.Is(err, ErrChainBroken) {
		t.Errorf("modified payload: err = %v, want ErrChainBroken", err)
	}

	if err := VerifyChain([]AuditEntry{first, third}); !errors.Is(err, ErrChainBroken) {
		t.Errorf("removed entry: err = %v, want ErrChainBroken", err)
	}
}
