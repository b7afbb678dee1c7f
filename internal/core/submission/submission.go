// Package submission turns the free text of a tracker issue into a BIN and candidate image URLs
package submission

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	binRe     = regexp.MustCompile(`\b(\d{6})\b`)
	srcAttrRe = regexp.MustCompile(`(?i)src=["'](https?://[^"']+)["']`)
	textURLRe = regexp.MustCompile(`(?i)https?://[^\s)\]">]+`)
	issuePath = regexp.MustCompile(`(?i)/(issues|pull)/`)
)

// Parsed is what an issue yields before dispatch
type Parsed struct {
	BIN            string
	AttachmentURLs []string
	TextURLs       []string
}

// Candidates returns attachment URLs followed by text URLs, deduplicated by normalized form
func (p Parsed) Candidates() []string {
	all := make([]string, 0, len(p.AttachmentURLs)+len(p.TextURLs))
	all = append(all, p.AttachmentURLs...)
	all = append(all, p.TextURLs...)
	return Dedupe(all)
}

// Parse extracts the first six digit BIN and the candidate URLs from title and body.
// A URL that appears both as an attachment and in the prose is kept only as an attachment.
func Parse(title, body string) Parsed {
	text := title + "\n" + body
	var p Parsed
	if m := binRe.FindStringSubmatch(text); m != nil {
		p.BIN = m[1]
	}

	attach := Dedupe(attachmentURLs(body))
	seen := make(map[string]struct{}, len(attach))
	for _, u := range attach {
		seen[NormalizeURL(u)] = struct{}{}
	}
	p.AttachmentURLs = attach

	for _, raw := range textURLRe.FindAllString(text, -1) {
		u := sanitize(raw)
		if u == "" || isTrackerLink(u) {
			continue
		}
		key := NormalizeURL(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		p.TextURLs = append(p.TextURLs, u)
	}
	return p
}

// attachmentURLs collects <img src> through the HTML parser, then any src="..." the parser did not see
// (markdown renderers emit img tags inside paragraphs the parser may restructure)
func attachmentURLs(body string) []string {
	var out []string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			if strings.HasPrefix(strings.ToLower(src), "http") {
				out = append(out, sanitize(src))
			}
		})
	}
	for _, m := range srcAttrRe.FindAllStringSubmatch(body, -1) {
		out = append(out, sanitize(m[1]))
	}
	kept := out[:0]
	for _, u := range out {
		if u != "" {
			kept = append(kept, u)
		}
	}
	return kept
}

func sanitize(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), `)]>'".,;`)
}

// isTrackerLink reports links to github issue or pull request pages, which are never photos
func isTrackerLink(u string) bool {
	pu, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(pu.Hostname())
	if host != "github.com" && !strings.HasSuffix(host, ".github.com") {
		return false
	}
	return issuePath.MatchString(pu.Path)
}

// NormalizeURL reduces u to lowercase scheme://host/path; query and fragment are ignored
func NormalizeURL(u string) string {
	pu, err := url.Parse(strings.TrimSpace(u))
	if err != nil || pu.Scheme == "" || pu.Host == "" {
		return strings.ToLower(strings.TrimSpace(u))
	}
	return strings.ToLower(pu.Scheme + "://" + pu.Host + pu.EscapedPath())
}

// Dedupe keeps the first occurrence of each normalized URL, preserving order
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		k := NormalizeURL(u)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Host returns the lowercase host of u, or u itself when it does not parse
func Host(u string) string {
	if pu, err := url.Parse(u); err == nil && pu.Host != "" {
		return strings.ToLower(pu.Host)
	}
	return u
}
