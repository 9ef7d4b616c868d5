// Package sitetest serves a small fake news site shaped like the default
// site selectors, for tests and local end-to-end runs.
package sitetest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"NewsCrawler/internal/config"

	"github.com/goccy/go-json"
)

// NewsListPath is the JSON news list endpoint, matching the default
// site.listing_api.
const NewsListPath = "/userApi/categoryNewsList"

// Site is a fake news site. Each category lists Articles article links,
// PerPage per listing page.
type Site struct {
	Server   *httptest.Server
	Articles int
	PerPage  int

	mu         sync.Mutex
	categories map[string]bool
	failures   map[string]*failure
	broken     map[string]bool
	hits       map[string]int
}

type failure struct {
	remaining int
	status    int
}

// New starts a site serving the given categories.
func New(categories []string, articles, perPage int) *Site {
	s := &Site{
		Articles:   articles,
		PerPage:    perPage,
		categories: make(map[string]bool),
		failures:   make(map[string]*failure),
		broken:     make(map[string]bool),
		hits:       make(map[string]int),
	}
	for _, c := range categories {
		s.categories[c] = true
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *Site) URL() string {
	return s.Server.URL
}

func (s *Site) Close() {
	s.Server.Close()
}

// ArticlePath is the path of the i-th article (1-based) of category.
func (s *Site) ArticlePath(category string, i int) string {
	return fmt.Sprintf("/%s/%d", category, 1000+i)
}

// ArticleURL is the absolute form of ArticlePath.
func (s *Site) ArticleURL(category string, i int) string {
	return s.URL() + s.ArticlePath(category, i)
}

// FailTimes makes the next n requests to path answer with status. path may
// carry a query to target a single listing page.
func (s *Site) FailTimes(path string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = &failure{remaining: n, status: status}
}

// Break makes path serve a page without title or paragraphs.
func (s *Site) Break(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[path] = true
}

// Hits counts requests received for path, failed ones included. A path
// without query counts every query variant.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	keys := []string{path}
	if uri := r.URL.RequestURI(); uri != path {
		keys = append(keys, uri)
	}

	s.mu.Lock()
	var fail *failure
	for _, k := range keys {
		s.hits[k]++
		if f := s.failures[k]; f != nil && f.remaining > 0 && fail == nil {
			f.remaining--
			fail = f
		}
	}
	broken := s.broken[path]
	s.mu.Unlock()

	if fail != nil {
		http.Error(w, http.StatusText(fail.status), fail.status)
		return
	}
	if path == NewsListPath {
		s.newsList(w, r)
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if !s.categories[parts[0]] {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch len(parts) {
	case 1:
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		s.listing(w, parts[0], page)
	case 2:
		id, err := strconv.Atoi(parts[1])
		if err != nil || id <= 1000 || id > 1000+s.Articles {
			http.NotFound(w, r)
			return
		}
		if broken {
			fmt.Fprint(w, "<html><body><div>nothing here</div></body></html>")
			return
		}
		fmt.Fprint(w, ArticleHTML(parts[0], id-1000))
	default:
		http.NotFound(w, r)
	}
}

func (s *Site) listing(w http.ResponseWriter, category string, page int) {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	start := (page-1)*s.PerPage + 1
	for i := start; i < start+s.PerPage && i <= s.Articles; i++ {
		fmt.Fprintf(&b, `<li><a class="news-preview" href="%s">Headline %d</a>`, s.ArticlePath(category, i), i)
		// the same article is often linked twice (image + headline)
		fmt.Fprintf(&b, `<a href="%s#photo"><img src="/i.jpg"></a></li>`, s.ArticlePath(category, i))
	}
	b.WriteString("</ul>")
	if start+s.PerPage <= s.Articles {
		fmt.Fprintf(&b, `<a class="next" href="?page=%d">More</a>`, page+1)
	}
	b.WriteString(`<a href="https://elsewhere.example.com/` + category + `/1">ad</a>`)
	b.WriteString("</body></html>")
	fmt.Fprint(w, b.String())
}

// newsList answers {sectionId, limit} posts with the first limit articles
// of the section's category. Sections of unserved categories are 404.
func (s *Site) newsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SectionID int `json:"sectionId"`
		Limit     int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := ""
	for c := range s.categories {
		if info, ok := config.LookupCategory(c); ok && info.SectionID == req.SectionID {
			category = c
		}
	}
	if category == "" {
		http.NotFound(w, r)
		return
	}

	type item struct {
		Title string `json:"title"`
		Lead  string `json:"lead"`
		Date  int64  `json:"date"`
		Link  string `json:"link"`
	}
	items := make([]item, 0, req.Limit)
	for i := 1; i <= s.Articles && i <= req.Limit; i++ {
		items = append(items, item{
			Title: ArticleTitle(category, i),
			Lead:  fmt.Sprintf("Lead of the %s story %d.", category, i),
			Date:  time.Date(2024, 5, i%28+1, 7, 0, 0, 0, time.UTC).Unix(),
			Link:  s.ArticlePath(category, i),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"newsList": items})
}

// ArticleTitle is the title served for the i-th article of category.
func ArticleTitle(category string, i int) string {
	return fmt.Sprintf("%s story number %d", strings.ToUpper(category[:1])+category[1:], i)
}

// ArticleHTML renders the i-th article of category.
func ArticleHTML(category string, i int) string {
	title := html.EscapeString(ArticleTitle(category, i))
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<title>%[1]s | News</title>
<meta name="description" content="Summary of %[2]s story %[3]d">
<meta property="article:published_time" content="2024-05-%02[3]dT10:00:00+03:00">
</head>
<body>
<h1 class="news-header__title">  %[1]s
</h1>
<div class="news-header__lead">Lead of the %[2]s story %[3]d.</div>
<div class="text-block">
<p>Officials in the %[2]s desk confirmed   the report on day %[3]d.</p>
<p>Markets reacted &amp; analysts <b>commented</b> on the %[2]s news.</p>
<p>   </p>
<p>Further details are expected later.</p>
</div>
</body>
</html>`, title, category, i)
}
