package archive

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15 // E.164
)

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	// digit groups joined by at most one separator, e.g. +44 20 7946 0958 or (330) 333-2654
	phoneCandidate = regexp.MustCompile(`\+?\(?\d+\)?(?:[ .\-]?\(?\d+\)?)*`)
	isoDate        = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}`)
)

// LeadHash identifies a lead in archived records without storing its ID.
// With a non-empty key the digest is an HMAC and cannot be recomputed from
// the lead ID alone.
func LeadHash(leadID string, key []byte) string {
	if len(key) == 0 {
		sum := sha256.Sum256([]byte(leadID))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(leadID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Redact masks email addresses and phone numbers in message text.
func Redact(text string) string {
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	return phoneCandidate.ReplaceAllStringFunc(text, func(m string) string {
		if isoDate.MatchString(m) {
			return m
		}
		digits := countDigits(m)
		if digits < minPhoneDigits || digits > maxPhoneDigits {
			return m
		}
		return "[PHONE]"
	})
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

func redactMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Content = Redact(msgs[i].Content)
	}
}
