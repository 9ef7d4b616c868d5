package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGetter struct {
	mock.Mock
}

func (m *mockGetter) Get(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// echoParser turns a body "title|para" into an article.
type echoParser struct{}

func (echoParser) Parse(body []byte, link string) (Article, error) {
	title, para, _ := strings.Cut(string(body), "|")
	if title == "" {
		return Article{}, &ParseError{URL: link, Reason: "missing title"}
	}
	return Article{Title: title, Link: link, Content: []string{para}}, nil
}

// syncBuffer lets concurrent slog writes be inspected.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func taskURL(cat string, i int) string {
	return fmt.Sprintf("https://news.example.com/%s/%d", cat, i)
}

func stubAll(g *mockGetter, cats []string, n int) []FetchTask {
	var tasks []FetchTask
	for _, cat := range cats {
		for i := 1; i <= n; i++ {
			u := taskURL(cat, i)
			g.On("Get", mock.Anything, u).Return([]byte(fmt.Sprintf("%s %d|body", cat, i)), nil).Maybe()
			tasks = append(tasks, FetchTask{Category: cat, URL: u})
		}
	}
	return tasks
}

func links(arts []Article) []string {
	out := make([]string, 0, len(arts))
	for _, a := range arts {
		out = append(out, a.Link)
	}
	sort.Strings(out)
	return out
}

func TestCoordinatorCollectsEverything(t *testing.T) {
	g := &mockGetter{}
	tasks := stubAll(g, []string{"world", "sports", "science"}, 5)

	c := NewCoordinator(g, echoParser{}, NewRetrier(3, noDelay(), nil), 4, nil)
	report := c.Run(context.Background(), tasks, nil)

	assert.Equal(t, []string{"science", "sports", "world"}, report.Collection.Categories())
	for _, cat := range []string{"world", "sports", "science"} {
		assert.Equal(t, 5, report.Collection.Count(cat))
	}
	assert.Empty(t, report.Failures)
	assert.Equal(t, 15, report.Attempts)
	g.AssertNumberOfCalls(t, "Get", 15)
}

func TestCoordinatorWorkerCountDoesNotChangeResult(t *testing.T) {
	var want map[string][]string
	for _, workers := range []int{1, 2, 8} {
		g := &mockGetter{}
		fail := taskURL("world", 3)
		g.On("Get", mock.Anything, fail).Return(nil, transient(fail)).Times(2)
		tasks := stubAll(g, []string{"world", "economy"}, 6)

		report := NewCoordinator(g, echoParser{}, NewRetrier(1, noDelay(), nil), workers, nil).
			Run(context.Background(), tasks, nil)

		got := map[string][]string{
			"world":   links(report.Collection.Articles("world")),
			"economy": links(report.Collection.Articles("economy")),
		}
		require.Len(t, report.Failures, 1, "workers=%d", workers)
		assert.Equal(t, fail, report.Failures[0].URL)
		if want == nil {
			want = got
			assert.Len(t, want["world"], 5)
			assert.Len(t, want["economy"], 6)
			continue
		}
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestCoordinatorRetriesThenSucceeds(t *testing.T) {
	logger, buf := bufferLogger()
	u := taskURL("world", 1)
	g := &mockGetter{}
	g.On("Get", mock.Anything, u).Return(nil, transient(u)).Twice()
	g.On("Get", mock.Anything, u).Return([]byte("Title|text"), nil).Once()

	report := NewCoordinator(g, echoParser{}, NewRetrier(3, noDelay(), logger), 2, logger).
		Run(context.Background(), []FetchTask{{Category: "world", URL: u}}, nil)

	arts := report.Collection.Articles("world")
	require.Len(t, arts, 1)
	assert.Equal(t, u, arts[0].Link)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 3, report.Attempts)
	assert.Contains(t, buf.String(), "retries=2")
	g.AssertExpectations(t)
}

func TestCoordinatorDropsExhaustedTask(t *testing.T) {
	logger, buf := bufferLogger()
	bad := taskURL("world", 1)
	good := taskURL("world", 2)
	g := &mockGetter{}
	g.On("Get", mock.Anything, bad).Return(nil, transient(bad)).Times(4)
	g.On("Get", mock.Anything, good).Return([]byte("Good|text"), nil).Once()

	report := NewCoordinator(g, echoParser{}, NewRetrier(3, noDelay(), logger), 2, logger).
		Run(context.Background(), []FetchTask{{Category: "world", URL: bad}, {Category: "world", URL: good}}, nil)

	assert.Equal(t, []string{good}, links(report.Collection.Articles("world")))
	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, bad, f.URL)
	assert.Equal(t, 4, f.Attempts)
	assert.True(t, f.Exhausted)
	assert.ErrorIs(t, f.Err, ErrRetriesExhausted)
	assert.Equal(t, 1, strings.Count(buf.String(), "task abandoned"))
	assert.Contains(t, buf.String(), "max_retries=3")
	g.AssertNumberOfCalls(t, "Get", 5)
}

func TestCoordinatorDoesNotRetryParseFailures(t *testing.T) {
	u := taskURL("world", 1)
	g := &mockGetter{}
	g.On("Get", mock.Anything, u).Return([]byte("|no title"), nil).Once()

	report := NewCoordinator(g, echoParser{}, NewRetrier(3, noDelay(), nil), 1, nil).
		Run(context.Background(), []FetchTask{{Category: "world", URL: u}}, nil)

	assert.Zero(t, report.Collection.Count("world"))
	require.Len(t, report.FailuresFor("world"), 1)
	assert.False(t, report.Failures[0].Exhausted)
	g.AssertExpectations(t)
}

func TestCoordinatorCapsAndDedupes(t *testing.T) {
	g := &mockGetter{}
	tasks := stubAll(g, []string{"world"}, 6)
	tasks = append(tasks, FetchTask{Category: "world", URL: taskURL("world", 1)})
	tasks = append(tasks, FetchTask{Category: "sports", URL: taskURL("world", 1)})

	report := NewCoordinator(g, echoParser{}, NewRetrier(0, noDelay(), nil), 3, nil).
		Run(context.Background(), tasks, map[string]int{"world": 4})

	world := report.Collection.Articles("world")
	assert.Len(t, world, 4)
	assert.Len(t, links(world), len(uniq(links(world))))
	assert.Equal(t, 1, report.Collection.Count("sports"), "same link in another category is kept")
}

func uniq(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestCoordinatorEmptyTaskList(t *testing.T) {
	report := NewCoordinator(&mockGetter{}, echoParser{}, NewRetrier(0, noDelay(), nil), 4, nil).
		Run(context.Background(), nil, nil)
	assert.Empty(t, report.Collection.Categories())
	assert.Empty(t, report.Failures)
}

func TestCoordinatorCancelledContext(t *testing.T) {
	g := &mockGetter{}
	tasks := stubAll(g, []string{"world"}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewCoordinator(g, echoParser{}, NewRetrier(2, noDelay(), nil), 2, nil).Run(ctx, tasks, nil)
	assert.Equal(t, 3, report.Collection.Count("world")+len(report.Failures))
}

func TestCoordinatorPublishesProgress(t *testing.T) {
	g := &mockGetter{}
	tasks := stubAll(g, []string{"world"}, 4)
	hub := NewHub(nil)
	events := hub.Subscribe("test")

	NewCoordinator(g, echoParser{}, NewRetrier(0, noDelay(), nil), 2, nil).WithHub(hub).
		Run(context.Background(), tasks, nil)
	hub.Close()

	var got []Progress
	for p := range events {
		got = append(got, p)
	}
	require.Len(t, got, 4)
	for i, p := range got {
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, 4, p.Total)
		assert.True(t, p.OK)
	}
}
