package safety

import "regexp"

// PII categories are redacted from the persisted form of a message.
// Detection fails closed: a long digit run that matches no specific
// category is still treated as sensitive.
var piiPatterns = []struct {
	name        string
	re          *regexp.Regexp
	replacement string
}{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED SSN]"},
	{"credit_card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), "[REDACTED CARD]"},
	{"phone", regexp.MustCompile(`\b(?:\+?1[ -.]?)?\(?\d{3}\)?[ -.]?\d{3}[ -.]?\d{4}\b`), "[REDACTED PHONE]"},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED EMAIL]"},
	{"street_address", regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z]+\s)?[A-Za-z]+\s(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|court|ct)\b\.?`), "[REDACTED ADDRESS]"},
	{"number_run", regexp.MustCompile(`\b\d{9,}\b`), "[REDACTED NUMBER]"},
}

// PrivacyNotice is appended to the displayed response when PII was
// detected, telling the user the stored copy was scrubbed.
const PrivacyNotice = "\n\n(For your privacy, I've removed personal details like numbers and addresses from my saved notes of this conversation.)"

// DetectPII reports whether the text contains any PII category.
func DetectPII(text string) bool {
	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactPII returns the storage-safe form of text with every detected
// category replaced by its placeholder.
func RedactPII(text string) string {
	out := text
	for _, p := range piiPatterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	return out
}

// Redacted returns (storedText, displaySuffix). Storage and display
// intentionally diverge: the persisted form is scrubbed while the user
// still sees their original words plus the privacy notice.
func Redacted(text string) (string, string) {
	if !DetectPII(text) {
		return text, ""
	}
	return RedactPII(text), PrivacyNotice
}
