package pipeline

import (
	"strings"
	"testing"
	"time"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/sitetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParser(t *testing.T) *Parser {
	t.Helper()
	cfg := config.Default()
	loc, err := time.LoadLocation(cfg.Site.Timezone)
	require.NoError(t, err)
	return NewParser(cfg.Site.Article, loc)
}

func TestParseArticle(t *testing.T) {
	p := defaultParser(t)
	link := "https://tass.com/world/1003"

	a, err := p.Parse([]byte(sitetest.ArticleHTML("world", 3)), link)
	require.NoError(t, err)

	assert.Equal(t, "World story number 3", a.Title)
	assert.Equal(t, "Summary of world story 3", a.Description)
	assert.Equal(t, "2024-05-03 10:00:00", a.Date)
	assert.Equal(t, link, a.Link)
	assert.Equal(t, []string{
		"Lead of the world story 3.",
		"Officials in the world desk confirmed the report on day 3.",
		"Markets reacted & analysts commented on the world news.",
		"Further details are expected later.",
	}, a.Content)
}

func TestParseIsDeterministic(t *testing.T) {
	p := defaultParser(t)
	body := []byte(sitetest.ArticleHTML("sports", 7))
	first, err := p.Parse(body, "https://tass.com/sports/1007")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := p.Parse(body, "https://tass.com/sports/1007")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParseDates(t *testing.T) {
	p := defaultParser(t)
	cases := []struct {
		name string
		head string
		body string
		want string
	}{
		{"offset converted to site zone", `<meta property="article:published_time" content="2024-01-15T07:30:00Z">`, "", "2024-01-15 10:30:00"},
		{"epoch seconds", "", `<dateformat time="1700000000"></dateformat>`, "2023-11-15 01:13:20"},
		{"garbage", `<meta property="article:published_time" content="sometime soon">`, "", ""},
		{"missing", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := "<html><head>" + tc.head + "</head><body><h1>T</h1>" + tc.body +
				`<div class="text-block"><p>x</p></div></body></html>`
			a, err := p.Parse([]byte(page), "https://tass.com/world/1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Date)
		})
	}
}

func TestParseTitleFallbacks(t *testing.T) {
	p := defaultParser(t)

	a, err := p.Parse([]byte(`<html><head><meta property="og:title" content=" OG   title "></head>
<body><div class="text-block"><p>x</p></div></body></html>`), "https://tass.com/a")
	require.NoError(t, err)
	assert.Equal(t, "OG title", a.Title)

	a, err = p.Parse([]byte(`<html><head><title>Tab title</title>
<meta property="og:description" content="og desc"></head>
<body><div class="text-block"><p>x</p></div></body></html>`), "https://tass.com/b")
	require.NoError(t, err)
	assert.Equal(t, "Tab title", a.Title)
	assert.Equal(t, "og desc", a.Description)
}

func TestParseRejectsUnusablePages(t *testing.T) {
	p := defaultParser(t)

	_, err := p.Parse([]byte(`<html><body><div class="text-block"><p>text</p></div></body></html>`), "https://tass.com/a")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing title", pe.Reason)
	assert.False(t, IsTransient(err))

	_, err = p.Parse([]byte(`<html><body><h1>Title</h1><div class="text-block"><p>   </p></div></body></html>`), "https://tass.com/b")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "no content paragraphs", pe.Reason)
}

func TestParseReadabilityFallback(t *testing.T) {
	sel := config.Default().Site.Article
	sel.ReadabilityFallback = true
	p := NewParser(sel, time.UTC)

	page := `<html><head><title>Long read</title></head><body>
<article>
<h1>Long read</h1>
<p>The first paragraph of a long article body carries enough words to be picked up as readable content by the extractor.</p>
<p>The second paragraph continues the story with further sentences, commas, and more text so the scoring keeps this block.</p>
</article>
</body></html>`

	a, err := p.Parse([]byte(page), "https://example.com/story")
	require.NoError(t, err)
	assert.Equal(t, "Long read", a.Title)
	require.NotEmpty(t, a.Content)
	assert.Contains(t, strings.Join(a.Content, " "), "second paragraph continues the story")
	for _, para := range a.Content {
		assert.NotEmpty(t, para)
		assert.NotContains(t, para, "\n")
	}
}

func TestNewParserDefaultsToUTC(t *testing.T) {
	p := NewParser(config.ArticleSelectors{Title: "h1", Paragraphs: "p", Date: "time", DateAttr: "datetime"}, nil)
	a, err := p.Parse([]byte(`<h1>T</h1><time datetime="2024-02-01T12:00:00Z"></time><p>x</p>`), "https://a.b/c")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01 12:00:00", a.Date)
}
