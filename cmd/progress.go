package main

import (
	"io"

	"NewsCrawler/internal/pipeline"

	"github.com/cheggaaa/pb/v3"
)

const barTemplate = `{{counters . }} {{bar . }} {{percent . }} {{etime . }}`

// progress draws a console bar from hub events.
type progress struct {
	done chan struct{}
}

func followProgress(events <-chan pipeline.Progress, w io.Writer) *progress {
	p := &progress{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		var bar *pb.ProgressBar
		for ev := range events {
			if bar == nil {
				bar = pb.New(ev.Total)
				bar.SetTemplateString(barTemplate)
				bar.SetWriter(w)
				bar.Start()
			}
			bar.SetCurrent(int64(ev.Done))
		}
		if bar != nil {
			bar.Finish()
		}
	}()
	return p
}

// Wait blocks until the event stream ended. A nil progress is a no-op.
func (p *progress) Wait() {
	if p == nil {
		return
	}
	<-p.done
}
