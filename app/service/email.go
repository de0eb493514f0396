package service

import "strings"

// CanonicalizeEmail normalizes an email address for uniqueness checks.
// For Gmail/Googlemail: strips dots from local part and removes +suffix.
// For all domains: lowercases the entire address.
func CanonicalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}

	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if domain == "gmail.com" {
		local, _, _ = strings.Cut(local, "+")
		local = strings.ReplaceAll(local, ".", "")
	}

	return local + "@" + domain
}
