// Package classify - corporate email address classification
//
// All functions are pure and deterministic. The matcher lists are plain
// configuration data evaluated uniformly, so the policy can be extended
// without touching control flow.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Category email address classification ENUM value type
type Category string

const (
	// CategoryCorporate the address belongs to a corporate domain
	CategoryCorporate Category = "corporate"
	// CategoryPersonal the address belongs to a consumer webmail provider
	CategoryPersonal Category = "personal"
	// CategoryUnknown the address could not be classified as corporate
	CategoryUnknown Category = "unknown"
)

// deniedDomains consumer webmail providers. Matched against the full domain
// only, never as a substring.
var deniedDomains = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"zoho.com":       true,
	"rediffmail.com": true,
	"indiatimes.com": true,
	"mail.com":       true,
	"gmx.com":        true,
	"yandex.com":     true,
	"qq.com":         true,
	"163.com":        true,
	"126.com":        true,
}

// allowedTLDs domain suffixes accepted as corporate-looking
var allowedTLDs = []string{
	"co.in", "in", "com", "org", "net", "io", "ai", "co", "uk", "de", "fr", "jp",
}

// genericLocalParts local parts which need extra corroboration from the domain
var genericLocalParts = map[string]bool{
	"info":    true,
	"contact": true,
	"support": true,
	"admin":   true,
	"hello":   true,
	"test":    true,
}

// corporateIndicators domain substrings treated as corporate corroboration
var corporateIndicators = []string{
	"corp", "inc", "llc", "ltd", "pvt", "private", "limited",
	"industries", "group", "holdings", "enterprise", "security", "intelligence",
}

// basicEmailRegex minimal local@domain.tld shape check
var basicEmailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// splitAddress break an email address into local part and domain
func splitAddress(email string) (local string, domain string, ok bool) {
	lowered := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(lowered, "@")
	if at <= 0 || at == len(lowered)-1 {
		return "", "", false
	}
	return lowered[:at], lowered[at+1:], true
}

/*
Classify categorize an email address

	@param email string - the email address
	@return corporate, personal, or unknown
*/
func Classify(email string) Category {
	if IsCorporate(email) {
		return CategoryCorporate
	}

	if _, domain, ok := splitAddress(email); ok && deniedDomains[domain] {
		return CategoryPersonal
	}

	return CategoryUnknown
}

/*
IsCorporate check whether an email address belongs to a corporate domain

	@param email string - the email address
	@return whether the address is corporate
*/
func IsCorporate(email string) bool {
	local, domain, ok := splitAddress(email)
	if !ok {
		return false
	}

	// Consumer webmail domains are always personal
	if deniedDomains[domain] {
		return false
	}

	// Domain must end with one of the accepted TLDs
	tldOK := false
	for _, tld := range allowedTLDs {
		if strings.HasSuffix(domain, "."+tld) {
			tldOK = true
			break
		}
	}
	if !tldOK {
		return false
	}

	// Generic local parts need a corporate indicator somewhere in the domain
	if genericLocalParts[local] {
		indicatorOK := false
		for _, indicator := range corporateIndicators {
			if strings.Contains(domain, indicator) {
				indicatorOK = true
				break
			}
		}
		if !indicatorOK {
			return false
		}
	}

	return basicEmailRegex.MatchString(strings.ToLower(email))
}

/*
SuggestAlternatives propose corporate address formats for a rejected address

	@param email string - the rejected email address
	@return up to two suggested alternatives
*/
func SuggestAlternatives(email string) []string {
	local, _, ok := splitAddress(email)
	if !ok {
		return nil
	}

	// Strip webmail provider suffixes people sometimes carry in the local part
	local = strings.TrimSuffix(local, ".gmail")
	local = strings.TrimSuffix(local, ".yahoo")
	local = strings.TrimSuffix(local, ".outlook")

	return []string{
		fmt.Sprintf("%s@yourcompany.com", local),
		fmt.Sprintf("%s@yourcompany.co.in", local),
	}
}
