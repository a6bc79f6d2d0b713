// Package tracker accumulates per-thread frame occurrence counts and
// picks each thread's hot frame.
//
// Counts are cumulative since process start; nothing is evicted or
// decayed. A long capture therefore converges on the steady-state
// behavior of each thread, which is what this tool is for.
package tracker

import (
	"sort"

	"github.com/jonhoo/stuck/pkg/frame"
	"github.com/jonhoo/stuck/pkg/ingest"
)

// ThreadState holds everything tracked for one thread id. It is created
// on a thread's first sample and lives for the rest of the run.
type ThreadState struct {
	// Counts maps a frame to the number of samples it appeared in.
	Counts map[*frame.Frame]int
	// Paths maps a frame to the root-prefix of the most recent sample
	// that introduced it, up to and including the frame itself.
	Paths map[*frame.Frame][]*frame.Frame
	// Samples is the total number of samples observed for the thread.
	Samples int
}

// Tracker owns all per-thread state. It is not safe for concurrent use:
// only the aggregation owner may call it (samples are handed to that
// owner over a channel, so no locking is needed here).
type Tracker struct {
	threads map[uint64]*ThreadState
	samples int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		threads: make(map[uint64]*ThreadState),
	}
}

// Observe folds one sample into its thread's state. Every distinct frame
// in the stack has its counter incremented by exactly one; a frame that
// recurs in a single stack (recursion) still counts once, so recursion
// depth cannot inflate a frame's apparent hotness. Each counted frame's
// recorded ancestor path is replaced with this sample's root-prefix,
// most recent observation wins.
func (t *Tracker) Observe(s ingest.Sample) {
	ts, ok := t.threads[s.TID]
	if !ok {
		ts = &ThreadState{
			Counts: make(map[*frame.Frame]int),
			Paths:  make(map[*frame.Frame][]*frame.Frame),
		}
		t.threads[s.TID] = ts
	}

	seen := make(map[*frame.Frame]struct{}, len(s.Stack))
	for i, f := range s.Stack {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		ts.Counts[f]++
		ts.Paths[f] = s.Stack[: i+1 : i+1]
	}
	ts.Samples++
	t.samples++
}

// HotFrame returns the frame with the maximum occurrence count for a
// thread, along with that count. Ties break toward the frame whose
// recorded ancestor path is deepest (more specific), then toward the
// lexicographically smaller identity so the choice is reproducible
// cycle to cycle. Returns (nil, 0) for an unknown thread.
func (t *Tracker) HotFrame(tid uint64) (*frame.Frame, int) {
	ts, ok := t.threads[tid]
	if !ok {
		return nil, 0
	}

	var (
		best      *frame.Frame
		bestCount int
		bestDepth int
	)
	for f, count := range ts.Counts {
		depth := len(ts.Paths[f])
		switch {
		case best == nil || count > bestCount:
		case count == bestCount && depth > bestDepth:
		case count == bestCount && depth == bestDepth && f.ID() < best.ID():
		default:
			continue
		}
		best, bestCount, bestDepth = f, count, depth
	}
	return best, bestCount
}

// Path returns the recorded ancestor path for a frame of a thread, root
// first. The returned slice is shared state and must not be mutated.
func (t *Tracker) Path(tid uint64, f *frame.Frame) []*frame.Frame {
	ts, ok := t.threads[tid]
	if !ok {
		return nil
	}
	return ts.Paths[f]
}

// Threads returns all thread ids with at least one sample, ascending.
func (t *Tracker) Threads() []uint64 {
	tids := make([]uint64, 0, len(t.threads))
	for tid := range t.threads {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })
	return tids
}

// ThreadSamples returns the sample count observed for one thread.
func (t *Tracker) ThreadSamples(tid uint64) int {
	ts, ok := t.threads[tid]
	if !ok {
		return 0
	}
	return ts.Samples
}

// TotalSamples returns the number of samples observed across all threads.
func (t *Tracker) TotalSamples() int {
	return t.samples
}
