package server

import (
	"sort"
	"sync"

	"NewsCrawler/internal/pipeline"
)

type CategoryStatus struct {
	Category  string `json:"category"`
	Requested int    `json:"requested"`
	Obtained  int    `json:"obtained"`
	Failed    int    `json:"failed"`
}

// Status is the snapshot served on /status.
type Status struct {
	RunID      string           `json:"run_id"`
	Done       int              `json:"done"`
	Total      int              `json:"total"`
	Finished   bool             `json:"finished"`
	Categories []CategoryStatus `json:"categories"`
}

// Tracker folds progress events into a run Status.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	requested int
	done      int
	total     int
	finished  bool
	cats      map[string]*CategoryStatus
}

func NewTracker(runID string, categories []string, requested int) *Tracker {
	t := &Tracker{runID: runID, requested: requested, cats: make(map[string]*CategoryStatus)}
	for _, c := range categories {
		t.cats[c] = &CategoryStatus{Category: c, Requested: requested}
	}
	return t
}

func (t *Tracker) Observe(p pipeline.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs, ok := t.cats[p.Category]
	if !ok {
		cs = &CategoryStatus{Category: p.Category, Requested: t.requested}
		t.cats[p.Category] = cs
	}
	if p.OK {
		if cs.Obtained < cs.Requested {
			cs.Obtained++
		}
	} else {
		cs.Failed++
	}
	t.done = max(t.done, p.Done)
	t.total = p.Total
}

// Follow observes events until the channel is closed, then marks the run
// finished.
func (t *Tracker) Follow(events <-chan pipeline.Progress) {
	for p := range events {
		t.Observe(p)
	}
	t.Finish()
}

func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = true
}

func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := Status{RunID: t.runID, Done: t.done, Total: t.total, Finished: t.finished}
	for _, cs := range t.cats {
		st.Categories = append(st.Categories, *cs)
	}
	sort.Slice(st.Categories, func(i, j int) bool {
		return st.Categories[i].Category < st.Categories[j].Category
	})
	return st
}
