// Package output writes one file per category in the structured-document
// (JSON) or flat-table (CSV) format.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"NewsCrawler/internal/analysis"
	"NewsCrawler/internal/config"
	"NewsCrawler/internal/pipeline"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
)

// ContentSeparator joins paragraphs in the flat-table content column.
const ContentSeparator = " | "

// WriteError is a failure to produce one category's file.
type WriteError struct {
	Category string
	Path     string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s output to %s: %v", e.Category, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Document is the structured-document shape used when word analysis ran.
type Document struct {
	Articles []pipeline.Article `json:"articles"`
	TopWords []analysis.Entry   `json:"top_words"`
}

type Writer struct {
	dir       string
	format    string
	headlines int
	logger    *slog.Logger
}

func NewWriter(dir, format string, headlines int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{dir: dir, format: format, headlines: headlines, logger: logger.With("component", "output")}
}

// Path is where category's file goes.
func (w *Writer) Path(category string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%d.%s", category, w.headlines, config.ExtensionFor(w.format)))
}

// Write emits one category. top is nil when word analysis is off.
func (w *Writer) Write(category string, articles []pipeline.Article, top []analysis.Entry) (string, error) {
	path := w.Path(category)
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return path, &WriteError{Category: category, Path: path, Err: err}
	}

	var buf bytes.Buffer
	var err error
	if w.format == config.FormatCSV {
		err = writeCSV(&buf, articles, top)
	} else {
		err = writeJSON(&buf, articles, top)
	}
	if err == nil {
		err = os.WriteFile(path, buf.Bytes(), 0o644)
	}
	if err != nil {
		return path, &WriteError{Category: category, Path: path, Err: err}
	}
	w.logger.Info("saved category", "category", category, "articles", len(articles), "path", path)
	return path, nil
}

// WriteAll writes every listed category, including empty ones. A failed
// category does not stop the others; all failures are returned together.
func (w *Writer) WriteAll(col *pipeline.Collection, categories []string, top map[string][]analysis.Entry) (map[string]string, error) {
	paths := make(map[string]string, len(categories))
	var errs *multierror.Error
	for _, cat := range categories {
		var words []analysis.Entry
		if top != nil {
			words = top[cat]
			if words == nil {
				words = []analysis.Entry{}
			}
		}
		path, err := w.Write(cat, col.Articles(cat), words)
		if err != nil {
			w.logger.Error("failed to write output", "category", cat, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		paths[cat] = path
	}
	return paths, errs.ErrorOrNil()
}

func writeJSON(out io.Writer, articles []pipeline.Article, top []analysis.Entry) error {
	if articles == nil {
		articles = []pipeline.Article{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if top != nil {
		return enc.Encode(Document{Articles: articles, TopWords: top})
	}
	return enc.Encode(articles)
}

func csvHeader(withTop bool) []string {
	h := []string{"title", "description", "date", "link", "content"}
	if !withTop {
		return h
	}
	for i := 1; i <= analysis.TopN; i++ {
		h = append(h, fmt.Sprintf("top_word_%d", i))
	}
	for i := 1; i <= analysis.TopN; i++ {
		h = append(h, fmt.Sprintf("top_word_%d_count", i))
	}
	return h
}

func writeCSV(out io.Writer, articles []pipeline.Article, top []analysis.Entry) error {
	withTop := top != nil
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader(withTop)); err != nil {
		return err
	}

	var extra []string
	if withTop {
		extra = make([]string, 2*analysis.TopN)
		for i, e := range top {
			if i >= analysis.TopN {
				break
			}
			extra[i] = e.Word
			extra[analysis.TopN+i] = strconv.Itoa(e.Count)
		}
	}

	for _, a := range articles {
		row := []string{a.Title, a.Description, a.Date, a.Link, strings.Join(a.Content, ContentSeparator)}
		if err := cw.Write(append(row, extra...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadJSON loads a structured-document file written by Write, in either
// shape.
func ReadJSON(path string) ([]pipeline.Article, []analysis.Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var doc Document
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return doc.Articles, doc.TopWords, nil
	}
	var articles []pipeline.Article
	if err := json.Unmarshal(b, &articles); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return articles, nil, nil
}
