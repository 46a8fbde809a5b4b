package crm

import "strings"

// NormalizePhone converts Russian phone spellings to the 7XXXXXXXXXX form
// AlfaCRM expects. Accepts 8XXXXXXXXXX, 7XXXXXXXXXX, +7 with punctuation,
// and bare 9XXXXXXXXX mobiles. Returns false for anything else.
func NormalizePhone(text string) (string, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 11 && strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}
	if len(digits) == 10 && strings.HasPrefix(digits, "9") {
		digits = "7" + digits
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "7") {
		return digits, true
	}
	return "", false
}
