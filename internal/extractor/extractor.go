// Package extractor turns fetched HTML into crawl record content and same-domain links.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
)

// ErrEmptyDocument is returned for content with nothing to parse.
var ErrEmptyDocument = errors.New("empty document")

// Config holds the recognised extraction options.
type Config struct {
	HeaderTags             []string
	TextTags               []string
	SaveContent            bool
	SaveHeaderArticlePairs bool
	MainContentClasses     []string
	BlacklistClasses       []string
	BlacklistTags          []string
	DomainSuffix           string
}

// DefaultConfig returns the options used when none are configured.
func DefaultConfig() Config {
	return Config{
		HeaderTags:         []string{"h1", "h2"},
		TextTags:           []string{"p", "span", "li", "a", "strong", "h3", "h4", "h5", "h6"},
		MainContentClasses: []string{"main", "content"},
		BlacklistClasses:   []string{"sidebar", "footer"},
		BlacklistTags:      []string{"footer"},
		DomainSuffix:       "hse.ru",
	}
}

// Extractor implements crawler.Extractor with goquery.
type Extractor struct {
	cfg         Config
	headerSel   string
	headerTags  map[string]struct{}
	textTags    map[string]struct{}
	blacklisted map[string]struct{}
	linkPattern *regexp.Regexp
}

var _ crawler.Extractor = (*Extractor)(nil)

// New validates cfg and builds an Extractor.
func New(cfg Config) (*Extractor, error) {
	suffix := strings.Trim(strings.TrimSpace(cfg.DomainSuffix), ".")
	if suffix == "" {
		return nil, fmt.Errorf("extractor: domain suffix is required")
	}
	if len(cfg.HeaderTags) == 0 {
		return nil, fmt.Errorf("extractor: at least one header tag is required")
	}
	pattern, err := LinkPattern(suffix)
	if err != nil {
		return nil, err
	}
	cfg.DomainSuffix = suffix
	return &Extractor{
		cfg:         cfg,
		headerSel:   strings.Join(cfg.HeaderTags, ","),
		headerTags:  toSet(cfg.HeaderTags),
		textTags:    toSet(cfg.TextTags),
		blacklisted: toSet(cfg.BlacklistTags),
		linkPattern: pattern,
	}, nil
}

// LinkPattern compiles the link template for suffix. The matched prefix
// (no query or fragment) is what gets kept; the host itself is checked
// separately against the suffix.
func LinkPattern(suffix string) (*regexp.Regexp, error) {
	expr := `^(https?://)([A-Za-z0-9./]*)\.?` + regexp.QuoteMeta(suffix) + `/?[A-Za-z0-9_.~\-/]*`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile link pattern for %q: %w", suffix, err)
	}
	return pattern, nil
}

// Extract parses body fetched from pageURL.
func (e *Extractor) Extract(pageURL string, body []byte) (crawler.Extraction, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return crawler.Extraction{}, ErrEmptyDocument
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	bodySel := doc.Find("body").First()
	if bodySel.Length() == 0 {
		return crawler.Extraction{}, fmt.Errorf("document has no body")
	}

	out := crawler.Extraction{
		Title:       findTitle(doc),
		Description: metaContent(doc, "description"),
	}
	if e.cfg.SaveHeaderArticlePairs {
		doc.Find(e.headerSel).Each(func(_ int, header *goquery.Selection) {
			out.Sections = append(out.Sections, e.headerSection(header))
		})
	}
	e.mainContent(doc, bodySel, base, &out)
	return out, nil
}

// mainContent takes content and links from the main-content classes in
// configured order, so a later matching class replaces an earlier one.
func (e *Extractor) mainContent(doc *goquery.Document, bodySel *goquery.Selection, base *url.URL, out *crawler.Extraction) {
	for _, class := range e.cfg.MainContentClasses {
		main := doc.Find("." + class).First()
		if main.Length() == 0 {
			continue
		}
		if e.cfg.SaveContent {
			out.Content = clearedText(main)
		}
		out.Links = e.collectLinks(base, newLinkSet(), main).items
	}
	if len(out.Links) > 0 {
		return
	}

	links := newLinkSet()
	var parts []string
	bodySel.Children().Each(func(_ int, child *goquery.Selection) {
		if e.isBlacklisted(child) {
			return
		}
		if text := clearedText(child); text != "" {
			parts = append(parts, text)
		}
		e.collectLinks(base, links, child)
	})
	if e.cfg.SaveContent {
		out.Content = strings.Join(parts, ". ")
	}
	out.Links = links.items
}

func (e *Extractor) isBlacklisted(sel *goquery.Selection) bool {
	if _, ok := e.blacklisted[goquery.NodeName(sel)]; ok {
		return true
	}
	for _, class := range e.cfg.BlacklistClasses {
		if sel.HasClass(class) {
			return true
		}
	}
	return false
}

func (e *Extractor) collectLinks(base *url.URL, links *linkSet, scope *goquery.Selection) *linkSet {
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if !e.sameDomain(ref.Hostname()) {
			return
		}
		if match := e.linkPattern.FindString(ref.String()); match != "" {
			links.add(match)
		}
	})
	return links
}

// sameDomain reports whether host is the configured suffix or one of its subdomains.
func (e *Extractor) sameDomain(host string) bool {
	host = strings.ToLower(host)
	suffix := strings.ToLower(e.cfg.DomainSuffix)
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

func (e *Extractor) headerSection(header *goquery.Selection) crawler.HeaderSection {
	name := goquery.NodeName(header)
	section := crawler.HeaderSection{
		Level:     strings.TrimLeft(name, "hH"),
		Content:   clearedText(header),
		Responses: []string{},
	}
	header.NextAll().EachWithBreak(func(_ int, sibling *goquery.Selection) bool {
		tag := goquery.NodeName(sibling)
		if _, ok := e.headerTags[tag]; ok {
			return false
		}
		if _, ok := e.textTags[tag]; ok {
			section.Responses = append(section.Responses, clearedText(sibling))
			return true
		}
		if e.containsHeader(sibling) {
			e.descend(sibling, &section)
			return false
		}
		section.Responses = append(section.Responses, clearedText(sibling))
		return true
	})
	return section
}

// descend collects children of elem until a header, recursing into the
// first child that itself contains a header.
func (e *Extractor) descend(elem *goquery.Selection, section *crawler.HeaderSection) {
	elem.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if _, ok := e.headerTags[goquery.NodeName(child)]; ok {
			return false
		}
		if !e.containsHeader(child) {
			section.Responses = append(section.Responses, clearedText(child))
			return true
		}
		e.descend(child, section)
		return false
	})
}

func (e *Extractor) containsHeader(sel *goquery.Selection) bool {
	return sel.Find(e.headerSel).Length() > 0
}

func findTitle(doc *goquery.Document) string {
	if title := metaContent(doc, "title"); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf("meta[property=%q]", property)).First().Attr("content")
	return strings.TrimSpace(content)
}

// clearedText joins the non-blank text lines under sel with ". ".
func clearedText(sel *goquery.Selection) string {
	var chunks []string
	for _, node := range sel.Nodes {
		collectText(node, &chunks)
	}
	var lines []string
	for _, line := range strings.Split(strings.Join(chunks, "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, ". ")
}

func collectText(node *html.Node, chunks *[]string) {
	switch node.Type {
	case html.TextNode:
		*chunks = append(*chunks, node.Data)
		return
	case html.ElementNode:
		switch node.Data {
		case "script", "style", "noscript", "template":
			return
		}
	case html.CommentNode:
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, chunks)
	}
}

type linkSet struct {
	seen  map[string]struct{}
	items []string
}

func newLinkSet() *linkSet {
	return &linkSet{seen: map[string]struct{}{}}
}

func (s *linkSet) add(link string) {
	if _, ok := s.seen[link]; ok {
		return
	}
	s.seen[link] = struct{}{}
	s.items = append(s.items, link)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}
