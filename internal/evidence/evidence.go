// Package evidence computes the fingerprints and identifiers that make each
// verdict traceable: the content evidence hash, verification and case IDs,
// and hash-chained audit entries.
package evidence

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
)

// canonicalContent fixes field order and presence so the serialization of a
// Content never depends on omitempty or future struct changes.
type canonicalContent struct {
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Caption string `json:"caption"`
}

// Canonical returns the canonical JSON serialization of c.
func Canonical(c content.Content) ([]byte, error) {
	b, err := json.Marshal(canonicalContent{Kind: string(c.Kind), Text: c.Text, Caption: c.Caption})
	if err != nil {
		return nil, fmt.Errorf("evidence: canonical content: %w", err)
	}
	return b, nil
}

// Hash binds content to its arrival time:
// hex(SHA-256(canonical(c) || decimal(receivedAt in epoch millis))).
func Hash(c content.Content, receivedAt time.Time) (string, error) {
	b, err := Canonical(c)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(b)
	h.Write([]byte(strconv.FormatInt(receivedAt.UnixMilli(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewVerificationID returns VER-<epochMillis>-<9 random base36 chars>.
func NewVerificationID(now time.Time) (string, error) {
	suffix, err := randomString(base36, 9)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("VER-%d-%s", now.UnixMilli(), suffix), nil
}

// NewCaseID returns SL-<yyyymmdd>-<4 random digits>.
func NewCaseID(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("evidence: case id: %w", err)
	}
	return fmt.Sprintf("SL-%s-%04d", now.UTC().Format("20060102"), n.Int64()), nil
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("evidence: random: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
