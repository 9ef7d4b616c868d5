package pipeline

import (
	"log/slog"
)

// Progress is published once per task reaching a terminal state.
type Progress struct {
	Category string
	URL      string
	OK       bool
	Done     int
	Total    int
}

// Hub fans progress events out to subscribers. Slow subscribers miss events
// instead of stalling workers.
type Hub struct {
	subs      map[string]chan Progress
	addCh     chan subscription
	removeCh  chan string
	publishCh chan Progress
	stop      chan struct{}
	stopped   chan struct{}
	logger    *slog.Logger
}

type subscription struct {
	id string
	ch chan Progress
}

func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		subs:      make(map[string]chan Progress),
		addCh:     make(chan subscription),
		removeCh:  make(chan string),
		publishCh: make(chan Progress, 100),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		logger:    orDiscard(logger).With("component", "hub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case s := <-h.addCh:
			h.subs[s.id] = s.ch
		case id := <-h.removeCh:
			if ch, ok := h.subs[id]; ok {
				close(ch)
				delete(h.subs, id)
			}
		case p := <-h.publishCh:
			h.broadcast(p)
		case <-h.stop:
			for {
				select {
				case p := <-h.publishCh:
					h.broadcast(p)
				default:
					for id, ch := range h.subs {
						close(ch)
						delete(h.subs, id)
					}
					return
				}
			}
		}
	}
}

func (h *Hub) broadcast(p Progress) {
	for id, ch := range h.subs {
		select {
		case ch <- p:
		default:
			h.logger.Debug("skipping slow subscriber", "subscriber", id)
		}
	}
}

// Subscribe registers id. The returned channel is closed on Unsubscribe or
// Close.
func (h *Hub) Subscribe(id string) <-chan Progress {
	ch := make(chan Progress, 100)
	select {
	case h.addCh <- subscription{id: id, ch: ch}:
	case <-h.stopped:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(id string) {
	select {
	case h.removeCh <- id:
	case <-h.stopped:
	}
}

func (h *Hub) Publish(p Progress) {
	select {
	case h.publishCh <- p:
	default:
		h.logger.Debug("publish channel full, dropping event", "url", p.URL)
	}
}

// Close delivers pending events, closes every subscriber channel and stops
// the hub. It is safe to call more than once.
func (h *Hub) Close() {
	select {
	case <-h.stopped:
		return
	default:
	}
	select {
	case h.stop <- struct{}{}:
	case <-h.stopped:
	}
	<-h.stopped
}
