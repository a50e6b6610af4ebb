package normalize

import "regexp"

// Anonymization patterns for Spanish personal data. Applied to raw file
// content before it reaches any LLM or the knowledge base.
var (
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRE = regexp.MustCompile(`(\+34|0034)?[\s.-]?[6-9]\d{2}[\s.-]?\d{3}[\s.-]?\d{3}`)
	dniRE   = regexp.MustCompile(`(?i)\b\d{8}[A-Z]\b`)
	nieRE   = regexp.MustCompile(`(?i)\b[XYZ]\d{7}[A-Z]\b`)
)

// Anonymize replaces emails, Spanish phone numbers, DNI and NIE numbers
// with placeholder tags.
func Anonymize(text string) string {
	text = emailRE.ReplaceAllString(text, "[EMAIL]")
	text = phoneRE.ReplaceAllString(text, "[TELÉFONO]")
	text = dniRE.ReplaceAllString(text, "[DNI]")
	text = nieRE.ReplaceAllString(text, "[NIE]")
	return text
}
