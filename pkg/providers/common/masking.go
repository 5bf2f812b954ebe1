package common

import (
	"net/http"
	"regexp"
	"strings"
)

type maskPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var defaultPatterns = []maskPattern{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_\.]+`), "Bearer ***MASKED***"},
	{regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9\-_]{8,}`), "***MASKED_KEY***"},
	{regexp.MustCompile(`["']?api[_-]?key["']?\s*[:=]\s*["']?[A-Za-z0-9\-_]+["']?`), `"api_key": "***MASKED***"`},
	{regexp.MustCompile(`([?&])(api[_-]?key|token|secret)=([^&\s]+)`), "$1$2=***MASKED***"},
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
}

// MaskString removes credentials from text that may reach logs or clients.
func MaskString(s string) string {
	for _, p := range defaultPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}

// MaskHeaders returns a copy of headers with credential values masked.
func MaskHeaders(headers http.Header) map[string][]string {
	masked := make(map[string][]string, len(headers))
	for key, values := range headers {
		out := make([]string, len(values))
		for i, v := range values {
			if sensitiveHeaders[strings.ToLower(key)] {
				out[i] = "***MASKED***"
			} else {
				out[i] = MaskString(v)
			}
		}
		masked[key] = out
	}
	return masked
}
