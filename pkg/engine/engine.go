// Package engine runs the aggregation owner loop: the single goroutine
// that folds incoming samples into tracker state and redraws the
// ranking on a fixed cadence.
package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonhoo/stuck/pkg/ingest"
	"github.com/jonhoo/stuck/pkg/rank"
	"github.com/jonhoo/stuck/pkg/render"
	"github.com/jonhoo/stuck/pkg/tracker"
)

// Options configures a run.
type Options struct {
	// Interval is the redraw cadence.
	Interval time.Duration
	// Replay sleeps between samples to reproduce the input's original
	// timestamp gaps, so a captured trace file plays back at pace.
	Replay bool
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{
		Interval: 200 * time.Millisecond,
	}
}

// Engine owns the tracker exclusively: samples arrive over a channel
// and are applied here only, so thread state never needs locking.
type Engine struct {
	tracker  *tracker.Tracker
	renderer *render.Renderer
	reader   *ingest.Reader
	logger   *logrus.Logger
	opts     Options
}

// New creates an engine. reader is consulted only for its skip counter;
// a nil logger falls back to a default logger at warn level.
func New(tr *tracker.Tracker, r *render.Renderer, reader *ingest.Reader, logger *logrus.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	return &Engine{
		tracker:  tr,
		renderer: r,
		reader:   reader,
		logger:   logger,
		opts:     opts,
	}
}

// Run loops until samples is closed: it waits for either a new sample
// or the render ticker, whichever comes first, so stalled input never
// freezes the display and a redraw never delays sample intake. The
// channel closing is the program's sole termination trigger; Run then
// draws one final snapshot reflecting every processed sample and
// returns. There is deliberately no other way to stop it.
func (e *Engine) Run(samples <-chan ingest.Sample) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	var (
		lastTS uint64
		dirty  bool
	)
	for {
		select {
		case s, ok := <-samples:
			if !ok {
				e.render()
				e.logger.WithFields(logrus.Fields{
					"samples": e.tracker.TotalSamples(),
					"threads": len(e.tracker.Threads()),
					"skipped": e.skipped(),
				}).Info("Input stream closed")
				return
			}
			if e.opts.Replay && lastTS != 0 && s.Timestamp > lastTS {
				if gap := time.Duration(s.Timestamp - lastTS); gap > time.Millisecond {
					time.Sleep(gap)
				}
			}
			lastTS = s.Timestamp
			e.tracker.Observe(s)
			dirty = true

		case <-ticker.C:
			if dirty {
				e.render()
				dirty = false
			}
		}
	}
}

func (e *Engine) render() {
	e.renderer.Render(rank.Build(e.tracker, e.skipped()))
}

func (e *Engine) skipped() uint64 {
	if e.reader == nil {
		return 0
	}
	return e.reader.Skipped()
}
