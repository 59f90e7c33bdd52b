package main

import (
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"

	"github.com/ayusman/posebake/internal/app"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`

// progressObserver draws one bar per video while poses are estimated.
// Nothing is drawn when the writer is not a terminal.
type progressObserver struct {
	w       io.Writer
	enabled bool

	mu    sync.Mutex
	video string
	bar   *pb.ProgressBar
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{w: w, enabled: isTerminal(w)}
}

func (p *progressObserver) observe(e app.Event) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Stage {
	case app.StageEstimate:
		if p.bar == nil || p.video != e.Video {
			p.finishLocked()
			p.video = e.Video
			p.bar = pb.ProgressBarTemplate(progressTemplate).New(e.Total)
			p.bar.SetWriter(p.w)
			p.bar.Set("prefix", e.Clip)
			p.bar.Start()
		}
		p.bar.SetCurrent(int64(e.Done))
	case app.StageDone, app.StageFailed:
		p.finishLocked()
	}
}

func (p *progressObserver) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *progressObserver) finishLocked() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
