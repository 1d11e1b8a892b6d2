package api

import (
	"net/http"
	"strings"
)

// errorPattern defines a known server error and its suggested fix.
type errorPattern struct {
	// Name is a short identifier for the pattern (for debugging/logging).
	Name string

	// Match returns true if this pattern applies to the given error.
	Match func(apiErr *APIError) bool

	// Hint is the suggestion shown to the user.
	Hint string
}

// reasonContains looks at the reason and the body, since the server puts
// some descriptions only in the body.
func reasonContains(apiErr *APIError, substr string) bool {
	substr = strings.ToLower(substr)
	return strings.Contains(strings.ToLower(apiErr.Reason()), substr) ||
		strings.Contains(strings.ToLower(apiErr.Body), substr)
}

// knownPatterns is the list of known server errors with fix suggestions.
// Order matters: first match wins.
var knownPatterns = []errorPattern{
	{
		Name: "not-logged-in",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusFound ||
				apiErr.StatusCode == http.StatusUnauthorized ||
				apiErr.StatusCode == http.StatusForbidden
		},
		Hint: "The server rejected the session. Run 'vrt login --session <cookie>' with a fresh session cookie.",
	},
	{
		Name: "empty-vrt",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusBadRequest && reasonContains(apiErr, "Empty vrt")
		},
		Hint: "The descriptor file is empty. Write at least the <OGRVRTDataSource> skeleton before inserting fields.",
	},
	{
		Name: "missing-name",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusBadRequest && reasonContains(apiErr, "Missing input name")
		},
		Hint: "Pass the input name with --name.",
	},
	{
		Name: "foreign-table-not-integer",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusBadRequest && reasonContains(apiErr, "not integer")
		},
		Hint: "--foreign-table takes the numeric id of the foreign table, not its name.",
	},
	{
		Name: "foreign-table-missing",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusBadRequest && reasonContains(apiErr, "Foreign table does not exist")
		},
		Hint: "No foreign table has that id. Check the id in the server's admin pages.",
	},
	{
		Name: "invalid-xml",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusBadRequest && reasonContains(apiErr, "Invalid xml")
		},
		Hint: "The descriptor is not well-formed XML after template rendering. Check tags and {{ self.* }} placeholders.",
	},
	{
		Name: "nested-union",
		Match: func(apiErr *APIError) bool {
			return reasonContains(apiErr, "union layer includes another union layer")
		},
		Hint: "Nested OGRVRTUnionLayer elements are not supported. Flatten the union into a single level.",
	},
	{
		Name: "wrong-endpoint",
		Match: func(apiErr *APIError) bool {
			return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed
		},
		Hint: "The server does not expose " + VRTFilePath + ". Check the configured server URL.",
	},
}

// HintFor returns the hint for a failed status, reason and body detail,
// or "".
func HintFor(status int, reason, detail string) string {
	if status == 0 {
		return ""
	}
	apiErr := &APIError{StatusCode: status, Status: reason, Body: detail}
	for _, p := range knownPatterns {
		if p.Match(apiErr) {
			return p.Hint
		}
	}
	return ""
}
