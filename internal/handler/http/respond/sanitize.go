package respond

import (
	"regexp"
)

var (
	// SendGrid keys look like SG.<id>.<secret>.
	sendgridKeyPattern = regexp.MustCompile(`SG\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`)

	// OAuth2 and provider JWTs travel as bearer tokens.
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)

	// Postmark server tokens are UUIDs sent in a header.
	postmarkTokenPattern = regexp.MustCompile(`(?i)(X-Postmark-Server-Token[:=]\s*)[0-9a-f-]{36}`)

	// Passwords embedded in mongodb://, redis:// and postgres:// URLs.
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@]*):([^@/]+)@`)
)

// SanitizeError masks credentials that may appear in provider or driver errors.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = sendgridKeyPattern.ReplaceAllString(msg, "SG.****")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = postmarkTokenPattern.ReplaceAllString(msg, "${1}****")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}
