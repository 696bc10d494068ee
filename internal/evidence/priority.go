package evidence

import (
	"net/url"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

// PrioritizeSources moves documents whose source host matches one of the
// preferred domains to the front. Relative order inside both groups is kept,
// so a later stable sort by relevance breaks ties in favour of preferred sources.
func PrioritizeSources(docs []contracts.Document, preferred []string) []contracts.Document {
	if len(preferred) == 0 || len(docs) == 0 {
		return docs
	}

	front := make([]contracts.Document, 0, len(docs))
	var back []contracts.Document
	for _, doc := range docs {
		if IsPreferredSource(doc.Source(), preferred) {
			front = append(front, doc)
		} else {
			back = append(back, doc)
		}
	}
	return append(front, back...)
}

// IsPreferredSource reports whether source's host is, or is a subdomain of,
// one of the preferred domains
func IsPreferredSource(source string, preferred []string) bool {
	host := hostOf(source)
	if host == "" {
		return false
	}
	for _, domain := range preferred {
		domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "www."))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func hostOf(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	if !strings.Contains(source, "://") {
		source = "https://" + source
	}
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
