package utils

import (
	"strings"
)

// ElementID derives the element_id sent alongside a resolved label:
// "title-" followed by the lowercased label with whitespace runs replaced by "-".
func ElementID(label string) string {
	return "title-" + strings.Join(strings.Fields(strings.ToLower(label)), "-")
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
