// Package pathutil maps request paths to route templates for metric labels.
package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

const apiPrefix = "/api/v1/notification"

// Other is the label for every path that matches no known route.
const Other = "other"

// staticPaths are routes without path parameters.
var staticPaths = map[string]struct{}{
	"/":                             {},
	"/health":                       {},
	"/ready":                        {},
	"/live":                         {},
	"/metrics":                      {},
	apiPrefix + "/email/send":       {},
	apiPrefix + "/email/send/async": {},
	apiPrefix + "/email/send/batch": {},
	apiPrefix + "/push/send":        {},
	apiPrefix + "/push/send/async":  {},
	apiPrefix + "/push/send/user":   {},
	apiPrefix + "/providers":        {},
}

// pathPatterns is evaluated in order. Static routes sharing a prefix with a
// templated one come first.
var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/email/status/[^/]+$`), Template: apiPrefix + "/email/status/:id"},
	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/push/status/[^/]+$`), Template: apiPrefix + "/push/status/:id"},

	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/push/device/register$`), Template: apiPrefix + "/push/device/register"},
	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/push/device/user/[^/]+$`), Template: apiPrefix + "/push/device/user/:userId"},
	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/push/device/.+$`), Template: apiPrefix + "/push/device/:token"},

	{Pattern: regexp.MustCompile(`^` + apiPrefix + `/ratelimit/[^/]+$`), Template: apiPrefix + "/ratelimit/:serviceId"},
}

// NormalizePath converts paths carrying ids, tokens or service names into their
// route template so metric label cardinality stays bounded.
// Static routes are returned after stripping the query and trailing slash.
// Anything else maps to Other.
//
//	NormalizePath("/api/v1/notification/email/status/4f1c")   // "/api/v1/notification/email/status/:id"
//	NormalizePath("/api/v1/notification/ratelimit/billing")   // "/api/v1/notification/ratelimit/:serviceId"
//	NormalizePath("/health")                                  // "/health"
//	NormalizePath("/wp-login.php")                            // "other"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	if _, ok := staticPaths[path]; ok {
		return path
	}
	if !strings.HasPrefix(path, apiPrefix+"/") {
		return Other
	}
	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}
	return Other
}
