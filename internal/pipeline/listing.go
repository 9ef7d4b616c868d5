package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"NewsCrawler/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
)

// Poster is implemented by fetchers that can send a JSON request body.
type Poster interface {
	Post(ctx context.Context, url string, payload []byte) ([]byte, error)
}

type newsListRequest struct {
	SectionID int    `json:"sectionId"`
	Limit     int    `json:"limit"`
	Type      string `json:"type"`
	ImageSize int    `json:"imageSize"`
}

type newsListResponse struct {
	NewsList []struct {
		Title string `json:"title"`
		Lead  string `json:"lead"`
		Date  int64  `json:"date"`
		Link  string `json:"link"`
	} `json:"newsList"`
}

// Resolver turns a category into the bounded list of article URLs found on
// its listing pages.
type Resolver struct {
	getter  Getter
	poster  Poster
	retrier *Retrier
	site    config.SiteConfig
	base    *url.URL
	logger  *slog.Logger
}

func NewResolver(g Getter, r *Retrier, site config.SiteConfig, logger *slog.Logger) (*Resolver, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("listing: invalid base url %q", site.BaseURL)
	}
	if site.MaxPages <= 0 {
		site.MaxPages = 1
	}
	poster, _ := g.(Poster)
	return &Resolver{
		getter:  g,
		poster:  poster,
		retrier: r,
		site:    site,
		base:    base,
		logger:  orDiscard(logger).With("component", "listing"),
	}, nil
}

// Resolve returns up to count distinct article URLs for category in listing
// order. In html mode only a failure on the first page is an error; later
// pages that fail just end pagination.
func (r *Resolver) Resolve(ctx context.Context, category string, count int) ([]string, error) {
	if r.site.ListingMode == config.ListingAPI {
		return r.resolveAPI(ctx, category, count)
	}
	return r.resolveHTML(ctx, category, count)
}

// resolveAPI asks the news list endpoint for count items of the category's
// section in one request.
func (r *Resolver) resolveAPI(ctx context.Context, category string, count int) ([]string, error) {
	c, ok := config.LookupCategory(category)
	if !ok {
		return nil, &ListingError{Category: category, Err: fmt.Errorf("no section id for category %q", category)}
	}
	if r.poster == nil {
		return nil, &ListingError{Category: category, Err: fmt.Errorf("fetcher cannot post to %s", r.site.ListingAPI)}
	}
	payload, err := json.Marshal(newsListRequest{SectionID: c.SectionID, Limit: count, Type: "all", ImageSize: 434})
	if err != nil {
		return nil, &ListingError{Category: category, Err: err}
	}
	endpoint := r.pageURL(r.site.ListingAPI, category, 1)
	r.logger.Info("fetching news list", "category", category, "section", c.SectionID, "url", endpoint)

	var body []byte
	_, err = r.retrier.Do(ctx, endpoint, func(ctx context.Context) error {
		b, err := r.poster.Post(ctx, endpoint, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, &ListingError{Category: category, Err: err}
	}
	var resp newsListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ListingError{Category: category, Err: fmt.Errorf("decode news list: %w", err)}
	}

	seen := make(map[string]struct{}, len(resp.NewsList))
	links := make([]string, 0, count)
	for _, item := range resp.NewsList {
		abs, ok := r.absolute(item.Link)
		if !ok {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		if len(links) == count {
			break
		}
	}

	r.logger.Debug("resolved listing", "category", category, "requested", count, "found", len(links))
	return links, nil
}

func (r *Resolver) resolveHTML(ctx context.Context, category string, count int) ([]string, error) {
	seen := make(map[string]struct{})
	links := make([]string, 0, count)
	selector := r.placeholders(category, 1).Replace(r.site.LinkSelector)

	for page := 1; page <= r.site.MaxPages && len(links) < count; page++ {
		pageURL := r.pageURL(r.site.ListingPath, category, page)
		r.logger.Info("fetching news list", "category", category, "page", page, "url", pageURL)

		var body []byte
		_, err := r.retrier.Do(ctx, pageURL, func(ctx context.Context) error {
			b, err := r.getter.Get(ctx, pageURL)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		if err == nil && len(bytes.TrimSpace(body)) == 0 {
			err = fmt.Errorf("empty listing page %s", pageURL)
		}
		var doc *goquery.Document
		if err == nil {
			doc, err = goquery.NewDocumentFromReader(bytes.NewReader(body))
		}
		if err != nil {
			if page == 1 {
				return nil, &ListingError{Category: category, Err: err}
			}
			r.logger.Warn("listing page failed, stopping pagination", "category", category, "page", page, "error", err)
			break
		}

		added := 0
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			abs, ok := r.absolute(href)
			if !ok {
				return true
			}
			if _, dup := seen[abs]; dup {
				return true
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
			added++
			return len(links) < count
		})

		if added == 0 {
			break
		}
		if r.site.NextSelector != "" && doc.Find(r.site.NextSelector).Length() == 0 {
			break
		}
	}

	r.logger.Debug("resolved listing", "category", category, "requested", count, "found", len(links))
	return links, nil
}

func (r *Resolver) placeholders(category string, page int) *strings.Replacer {
	section := ""
	if c, ok := config.LookupCategory(category); ok {
		section = strconv.Itoa(c.SectionID)
	}
	return strings.NewReplacer(
		"{category}", category,
		"{section}", section,
		"{page}", strconv.Itoa(page),
	)
}

// pageURL expands the placeholders of tmpl and resolves it against the site.
func (r *Resolver) pageURL(tmpl, category string, page int) string {
	path := r.placeholders(category, page).Replace(tmpl)
	ref, err := url.Parse(path)
	if err != nil {
		return r.base.String()
	}
	return r.base.ResolveReference(ref).String()
}

// absolute resolves href against the site and keeps only same-host http(s)
// links, without fragments.
func (r *Resolver) absolute(href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := r.base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != r.base.Host {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
