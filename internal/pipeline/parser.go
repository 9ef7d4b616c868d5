package pipeline

import (
	"bytes"
	"html"
	"net/url"
	"strings"
	"time"

	"NewsCrawler/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Parser extracts Articles from raw pages. It holds no mutable state and is
// safe for concurrent use.
type Parser struct {
	sel    config.ArticleSelectors
	loc    *time.Location
	policy *bluemonday.Policy
}

func NewParser(sel config.ArticleSelectors, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{
		sel:    sel,
		loc:    loc,
		policy: bluemonday.StrictPolicy(),
	}
}

// Parse builds an Article for link from body. A page without a title or
// without any content paragraph yields a *ParseError.
func (p *Parser) Parse(body []byte, link string) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Article{}, &ParseError{URL: link, Reason: err.Error()}
	}

	a := Article{
		Title:       p.title(doc),
		Description: p.description(doc),
		Date:        p.date(doc),
		Link:        link,
		Content:     p.paragraphs(doc),
	}

	if len(a.Content) == 0 && p.sel.ReadabilityFallback {
		title, paragraphs := p.readable(body, link)
		a.Content = paragraphs
		if a.Title == "" {
			a.Title = title
		}
	}

	if a.Title == "" {
		return Article{}, &ParseError{URL: link, Reason: "missing title"}
	}
	if len(a.Content) == 0 {
		return Article{}, &ParseError{URL: link, Reason: "no content paragraphs"}
	}
	return a, nil
}

func (p *Parser) title(doc *goquery.Document) string {
	if p.sel.Title != "" {
		if t := p.clean(doc.Find(p.sel.Title).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t = p.clean(t); t != "" {
			return t
		}
	}
	return p.clean(doc.Find("title").First().Text())
}

func (p *Parser) description(doc *goquery.Document) string {
	if p.sel.Description != "" {
		if d := p.clean(valueOf(doc.Find(p.sel.Description).First(), p.sel.DescriptionAttr)); d != "" {
			return d
		}
	}
	d, _ := doc.Find(`meta[property="og:description"]`).Attr("content")
	return p.clean(d)
}

// date normalises the publication date to DateLayout in the site timezone.
// Unparseable or missing dates yield "".
func (p *Parser) date(doc *goquery.Document) string {
	if p.sel.Date == "" {
		return ""
	}
	raw := strings.TrimSpace(valueOf(doc.Find(p.sel.Date).First(), p.sel.DateAttr))
	if raw == "" {
		return ""
	}
	t, err := dateparse.ParseIn(raw, p.loc)
	if err != nil {
		return ""
	}
	return t.In(p.loc).Format(DateLayout)
}

func (p *Parser) paragraphs(doc *goquery.Document) []string {
	var out []string
	if p.sel.Lead != "" {
		if lead := p.clean(doc.Find(p.sel.Lead).First().Text()); lead != "" {
			out = append(out, lead)
		}
	}
	if p.sel.Paragraphs == "" {
		return out
	}
	doc.Find(p.sel.Paragraphs).Each(func(_ int, s *goquery.Selection) {
		if txt := p.clean(s.Text()); txt != "" {
			out = append(out, txt)
		}
	})
	return out
}

// readable extracts the main text with go-readability. Paragraphs are the
// non-empty lines of its plain text.
func (p *Parser) readable(body []byte, link string) (string, []string) {
	pageURL, _ := url.Parse(link)
	art, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", nil
	}
	var out []string
	for _, line := range strings.Split(art.TextContent, "\n") {
		if txt := p.clean(line); txt != "" {
			out = append(out, txt)
		}
	}
	return p.clean(art.Title), out
}

// clean strips markup left inside extracted text and collapses whitespace.
func (p *Parser) clean(s string) string {
	s = html.UnescapeString(p.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// valueOf returns the first non-empty attribute out of a comma separated
// list, or the element text when attrs is empty or none is present.
func valueOf(s *goquery.Selection, attrs string) string {
	if s.Length() == 0 {
		return ""
	}
	for _, attr := range strings.Split(attrs, ",") {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return s.Text()
}
