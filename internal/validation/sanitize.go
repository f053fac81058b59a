package validation

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptTagPattern  = regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)
	tagPattern        = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)
	eventAttrPattern  = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`)
	jsSchemePattern   = regexp.MustCompile(`(?i)javascript\s*:`)
	angleBracketsRepl = strings.NewReplacer("<", "", ">", "")

	strictPolicy = bluemonday.StrictPolicy()
)

// Sanitize removes script blocks, javascript: schemes, inline event handler
// attributes and every remaining tag or angle bracket from s. Event handler
// stripping only applies inside tags; plain text such as "online=1" is kept.
func Sanitize(s string) string {
	if s == "" {
		return s
	}

	clean := scriptTagPattern.ReplaceAllString(s, "")
	clean = tagPattern.ReplaceAllStringFunc(clean, stripEventAttrs)
	clean = jsSchemePattern.ReplaceAllString(clean, "")

	// bluemonday escapes what it keeps; unescape so stored text stays plain
	// and strip anything the unescape turned back into markup.
	clean = html.UnescapeString(strictPolicy.Sanitize(clean))
	clean = scriptTagPattern.ReplaceAllString(clean, "")
	clean = tagPattern.ReplaceAllString(clean, "")
	clean = jsSchemePattern.ReplaceAllString(clean, "")
	clean = angleBracketsRepl.Replace(clean)

	return strings.TrimSpace(clean)
}

func stripEventAttrs(tag string) string {
	return eventAttrPattern.ReplaceAllString(tag, "")
}

// SanitizeSubmission returns a copy of sub with every string field cleaned,
// including strings nested in FormData.
func SanitizeSubmission(sub Submission) Submission {
	out := sub
	out.Name = Sanitize(sub.Name)
	out.Email = Sanitize(sub.Email)
	out.Phone = Sanitize(sub.Phone)
	out.Postcode = Sanitize(sub.Postcode)
	out.Address = Sanitize(sub.Address)
	out.ServiceType = Sanitize(sub.ServiceType)

	out.Attribution.Referrer = Sanitize(sub.Attribution.Referrer)
	out.Attribution.UTMSource = Sanitize(sub.Attribution.UTMSource)
	out.Attribution.UTMMedium = Sanitize(sub.Attribution.UTMMedium)
	out.Attribution.UTMCampaign = Sanitize(sub.Attribution.UTMCampaign)
	out.Attribution.UTMContent = Sanitize(sub.Attribution.UTMContent)
	out.Attribution.UTMTerm = Sanitize(sub.Attribution.UTMTerm)
	out.Attribution.UserAgent = Sanitize(sub.Attribution.UserAgent)
	out.Attribution.PagePath = Sanitize(sub.Attribution.PagePath)

	if sub.FormData != nil {
		out.FormData = sanitizeMap(sub.FormData)
	}
	return out
}

func sanitizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[Sanitize(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	case map[string]any:
		return sanitizeMap(t)
	default:
		return v
	}
}
