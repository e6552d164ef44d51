package detection

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// contentPattern pairs a cheap keyword pre-filter with the authoritative
// regex. The regex only runs when one of the keywords appears in the
// lower-cased scan text, keeping the hot path off the regexp engine.
type contentPattern struct {
	name     string
	keywords []string
	re       *regexp.Regexp
}

var suspiciousPatterns = []contentPattern{
	{
		name:     "sql_union",
		keywords: []string{"union"},
		re:       regexp.MustCompile(`(?i)union\s+(all\s+)?select`),
	},
	{
		name:     "sql_statement",
		keywords: []string{"select", "insert", "delete", "drop", "update", "truncate"},
		re:       regexp.MustCompile(`(?i)(select\s+.+\s+from|insert\s+into|delete\s+from|drop\s+table|update\s+\S+\s+set|truncate\s+table)`),
	},
	{
		name:     "sql_tautology",
		keywords: []string{"or", "and"},
		re:       regexp.MustCompile(`(?i)\b(or|and)\b\s+('?\d+'?\s*=\s*'?\d+'?|'[^']*'\s*=\s*'[^']*')`),
	},
	{
		name:     "sql_timing",
		keywords: []string{"sleep", "benchmark", "waitfor"},
		re:       regexp.MustCompile(`(?i)(sleep\s*\(|benchmark\s*\(|waitfor\s+delay)`),
	},
	{
		name:     "xss_script_tag",
		keywords: []string{"<script", "</script"},
		re:       regexp.MustCompile(`(?i)<\s*/?\s*script[^>]*>`),
	},
	{
		name:     "xss_js_protocol",
		keywords: []string{"javascript:", "vbscript:"},
		re:       regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
	},
	{
		name:     "xss_event_handler",
		keywords: []string{"onerror", "onload", "onclick", "onfocus", "onmouse"},
		re:       regexp.MustCompile(`(?i)on(error|load|click|focus|mouse\w+)\s*=`),
	},
	{
		name:     "xss_eval",
		keywords: []string{"eval(", "document.cookie", "alert("},
		re:       regexp.MustCompile(`(?i)(eval\s*\(|alert\s*\(|document\.cookie)`),
	},
}

// SuspiciousContentDetector scans query parameters and body for SQL
// injection and XSS patterns. It rejects but deliberately does NOT ban:
// pattern matching on free text has a higher false-positive rate than the
// structural checks (an appeal mentioning "select" or "update" is not an
// attack), so rejection without reputation damage is the conservative
// choice.
type SuspiciousContentDetector struct{}

func NewSuspiciousContentDetector() *SuspiciousContentDetector {
	return &SuspiciousContentDetector{}
}

func (*SuspiciousContentDetector) Name() string { return "suspicious_content" }

func (d *SuspiciousContentDetector) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	if req.RawQuery == "" && len(req.Body) == 0 {
		return domain.Pass()
	}

	// On the wire a query arrives percent-encoded, so "union select" reads
	// "union%20select" or "union+select". Scan both the raw form and the
	// decoded form; an undecodable query still gets the raw scan.
	decoded := req.RawQuery
	if q, err := url.QueryUnescape(req.RawQuery); err == nil {
		decoded = q
	}

	var b strings.Builder
	b.Grow(len(req.RawQuery) + len(decoded) + len(req.Body) + 2)
	b.WriteString(req.RawQuery)
	b.WriteByte('\n')
	b.WriteString(decoded)
	b.WriteByte('\n')
	b.Write(req.Body)
	scan := strings.ToLower(b.String())

	for i := range suspiciousPatterns {
		p := &suspiciousPatterns[i]
		if !containsAny(scan, p.keywords) {
			continue
		}
		if p.re.MatchString(scan) {
			return domain.Reject(http.StatusBadRequest, "request rejected")
		}
	}
	return domain.Pass()
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
