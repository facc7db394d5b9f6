// Package filter - bot, honeypot, and spam heuristics for inbound submissions
package filter

import (
	"encoding/json"
	"strings"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
)

// AbuseFilter heuristic checks applied to inbound submissions before they are
// validated or encrypted
type AbuseFilter interface {
	/*
		IsBot check a user-agent string against known automated-client signatures

			@param userAgent string - the request user-agent header
			@return whether the user-agent looks automated
	*/
	IsBot(userAgent string) bool

	/*
		IsHoneypotTriggered check whether any decoy form field was populated

			@param rawPayload []byte - the raw JSON request body
			@return whether a decoy field is non-empty
	*/
	IsHoneypotTriggered(rawPayload []byte) bool

	/*
		IsSpam scan the serialized payload for known spam keywords

			@param payload interface{} - the submission payload
			@return whether the payload looks like spam
	*/
	IsSpam(payload interface{}) bool
}

// AbuseFilterParams abuse filter init parameters
//
// All lists are optional; the package defaults are used when nil.
type AbuseFilterParams struct {
	// BotSignatures case-insensitive user-agent substrings treated as bots
	BotSignatures []string
	// HoneypotFields decoy field names checked on the raw payload
	HoneypotFields []string
	// SpamKeywords case-insensitive substrings treated as spam
	SpamKeywords []string
}

// defaultBotSignatures automated-client user-agent fragments
var defaultBotSignatures = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python", "java", "php", "puppeteer", "headless",
}

// defaultHoneypotFields decoy fields a human-filled form never populates
var defaultHoneypotFields = []string{"honeypot", "website", "url"}

// defaultSpamKeywords serialized-payload fragments treated as spam
var defaultSpamKeywords = []string{
	"viagra", "casino", "lottery", "click here", "buy now",
	"cheap", "discount", "offer", "guaranteed", "make money",
	"work from home", "investment", "bitcoin", "crypto",
	"seo", "marketing", "insurance", "loan",
}

// abuseFilter implements AbuseFilter
type abuseFilter struct {
	goutils.Component

	botSignatures  []string
	honeypotFields []string
	spamKeywords   []string
}

/*
NewAbuseFilter define new abuse filter

	@param params AbuseFilterParams - filter parameters
	@returns filter instance
*/
func NewAbuseFilter(params AbuseFilterParams) AbuseFilter {
	logTags := log.Fields{"module": "filter", "component": "abuse-filter"}

	instance := &abuseFilter{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		botSignatures:  params.BotSignatures,
		honeypotFields: params.HoneypotFields,
		spamKeywords:   params.SpamKeywords,
	}

	if instance.botSignatures == nil {
		instance.botSignatures = defaultBotSignatures
	}
	if instance.honeypotFields == nil {
		instance.honeypotFields = defaultHoneypotFields
	}
	if instance.spamKeywords == nil {
		instance.spamKeywords = defaultSpamKeywords
	}

	return instance
}

/*
IsBot check a user-agent string against known automated-client signatures

	@param userAgent string - the request user-agent header
	@return whether the user-agent looks automated
*/
func (f *abuseFilter) IsBot(userAgent string) bool {
	lowered := strings.ToLower(userAgent)
	for _, signature := range f.botSignatures {
		if strings.Contains(lowered, signature) {
			return true
		}
	}
	return false
}

/*
IsHoneypotTriggered check whether any decoy form field was populated

	@param rawPayload []byte - the raw JSON request body
	@return whether a decoy field is non-empty
*/
func (f *abuseFilter) IsHoneypotTriggered(rawPayload []byte) bool {
	var fields map[string]interface{}
	if err := json.Unmarshal(rawPayload, &fields); err != nil {
		// Malformed payloads are handled by the validator, not here
		return false
	}

	for _, name := range f.honeypotFields {
		value, present := fields[name]
		if !present {
			continue
		}
		if asString, ok := value.(string); ok && asString != "" {
			return true
		}
	}
	return false
}

/*
IsSpam scan the serialized payload for known spam keywords

	@param payload interface{} - the submission payload
	@return whether the payload looks like spam
*/
func (f *abuseFilter) IsSpam(payload interface{}) bool {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	lowered := strings.ToLower(string(serialized))
	for _, keyword := range f.spamKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
