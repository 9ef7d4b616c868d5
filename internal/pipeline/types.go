package pipeline

import (
	"context"
	"sort"
)

// DateLayout is the date format of every emitted article.
const DateLayout = "2006-01-02 15:04:05"

// Article is one parsed article page. Link is unique within a category.
type Article struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Link        string   `json:"link"`
	Content     []string `json:"content"`
}

// FetchTask is one (category, URL) pair to visit.
type FetchTask struct {
	Category string
	URL      string
}

// FetchResult is the terminal state of a FetchTask: either Article is set,
// or Err describes why the task was dropped.
type FetchResult struct {
	Task      FetchTask
	Article   *Article
	Attempts  int
	Exhausted bool
	Err       error
}

func (r FetchResult) OK() bool {
	return r.Err == nil && r.Article != nil
}

// Failure is a task that was abandoned.
type Failure struct {
	Category  string
	URL       string
	Attempts  int
	Exhausted bool
	Err       error
}

// Getter performs a single HTTP GET attempt.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// ArticleParser turns a raw page into an Article.
type ArticleParser interface {
	Parse(body []byte, link string) (Article, error)
}

// Collection maps a category to its articles in completion order.
type Collection struct {
	articles map[string][]Article
}

func NewCollection() *Collection {
	return &Collection{articles: make(map[string][]Article)}
}

func (c *Collection) add(category string, a Article) {
	c.articles[category] = append(c.articles[category], a)
}

// Articles returns a copy of the articles collected for category.
func (c *Collection) Articles(category string) []Article {
	src := c.articles[category]
	out := make([]Article, len(src))
	copy(out, src)
	return out
}

func (c *Collection) Count(category string) int {
	return len(c.articles[category])
}

// Categories lists categories holding at least one article, sorted.
func (c *Collection) Categories() []string {
	out := make([]string, 0, len(c.articles))
	for k := range c.articles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Report is what the Coordinator returns once every task is terminal.
type Report struct {
	Collection *Collection
	Failures   []Failure
	Attempts   int
}

// FailuresFor returns the abandoned tasks of one category.
func (r *Report) FailuresFor(category string) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out
}
