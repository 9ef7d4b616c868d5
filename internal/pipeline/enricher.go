package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"NewsCrawler/internal/db"

	"github.com/abadojack/whatlanggo"
)

const summaryChars = 400

func summarize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func readTimeMinutes(s string) int32 {
	words := len(strings.Fields(s))
	rt := (words + 199) / 200
	if rt == 0 {
		rt = 1
	}
	return int32(rt)
}

// Enrich derives the archive record of an article: joined body, summary,
// content hash, detected language and read time.
func Enrich(category string, a Article) *db.Article {
	body := strings.Join(a.Content, "\n\n")
	h := sha256.Sum256([]byte(body))
	lang := whatlanggo.LangToString(whatlanggo.Detect(body).Lang)
	return &db.Article{
		Category:        category,
		URL:             a.Link,
		Title:           a.Title,
		Description:     a.Description,
		Published:       a.Date,
		Body:            body,
		Summary:         summarize(body, summaryChars),
		ContentHash:     hex.EncodeToString(h[:]),
		Language:        lang,
		ReadTimeMinutes: readTimeMinutes(body),
	}
}
