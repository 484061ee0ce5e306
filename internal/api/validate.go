package api

import "regexp"

// extensionRe validates extension numbers: digits only, 1-20 chars.
var extensionRe = regexp.MustCompile(`^\d{1,20}$`)

// agentStatuses lists the accepted agent availability values.
var agentStatuses = map[string]bool{
	"available": true,
	"busy":      true,
	"offline":   true,
}

// validateExtensionNumber checks that an extension number is digits only.
// Returns an error message if invalid, empty string if OK.
func validateExtensionNumber(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !extensionRe.MatchString(value) {
		return field + " must contain only digits (max 20)"
	}
	return ""
}

// validateAgentStatus checks an agent availability value.
func validateAgentStatus(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !agentStatuses[value] {
		return field + " must be \"available\", \"busy\", or \"offline\""
	}
	return ""
}
