package leads

import "strings"

// NormalizePhone returns the E.164 form of a phone number, assuming a US
// country code for bare 10-digit numbers. Channel prefixes such as
// "whatsapp:" are stripped.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, ":"); i >= 0 {
		value = value[i+1:]
	}
	if value == "" {
		return ""
	}
	digits := make([]rune, 0, len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) == 10 && !strings.HasPrefix(value, "+") {
		return "+1" + string(digits)
	}
	return "+" + string(digits)
}
