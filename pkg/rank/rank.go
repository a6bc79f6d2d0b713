// Package rank groups threads by their shared hot stack and orders the
// groups for display.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonhoo/stuck/pkg/frame"
	"github.com/jonhoo/stuck/pkg/tracker"
)

// Group is one entry of a snapshot: the root→hot-frame stack shared by
// its member threads, and the summed hot-frame occurrence counts.
type Group struct {
	Stack   []*frame.Frame
	Threads []uint64
	Weight  int
}

// Snapshot is the ranked result of one aggregation cycle. It is
// immutable once built; each cycle replaces the previous snapshot
// wholesale.
type Snapshot struct {
	Groups []Group
	// Threads is the number of threads with at least one sample.
	Threads int
	// Samples is the total number of samples folded in so far.
	Samples int
	// Skipped is the number of malformed input records discarded.
	Skipped uint64
}

// Build computes a snapshot from current tracker state. Every thread
// with at least one sample lands in exactly one group, keyed by the full
// ancestor path of its hot frame: two threads hot on the same frame but
// with different call contexts above it form distinct groups. Build
// only reads the tracker.
func Build(tr *tracker.Tracker, skipped uint64) Snapshot {
	byPath := make(map[string]*Group)

	tids := tr.Threads()
	for _, tid := range tids {
		hot, count := tr.HotFrame(tid)
		if hot == nil {
			continue
		}
		path := tr.Path(tid, hot)
		if len(path) == 0 || path[len(path)-1] != hot {
			// tracker state can only get here corrupted; bad input is
			// absorbed long before this point
			panic(fmt.Sprintf("rank: thread %d hot frame %q has no recorded ancestor path", tid, hot.ID()))
		}

		key := pathKey(path)
		g, ok := byPath[key]
		if !ok {
			g = &Group{Stack: path}
			byPath[key] = g
		}
		g.Threads = append(g.Threads, tid)
		g.Weight += count
	}

	groups := make([]Group, 0, len(byPath))
	for _, g := range byPath {
		// tids were visited in ascending order, so members are sorted
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Weight != groups[j].Weight {
			return groups[i].Weight > groups[j].Weight
		}
		if len(groups[i].Threads) != len(groups[j].Threads) {
			return len(groups[i].Threads) > len(groups[j].Threads)
		}
		return lessPath(groups[i].Stack, groups[j].Stack)
	})

	return Snapshot{
		Groups:  groups,
		Threads: len(tids),
		Samples: tr.TotalSamples(),
		Skipped: skipped,
	}
}

// pathKey flattens a stack into a grouping key. Identities joined with a
// separator: structural equality of the frame sequence, nothing
// positional.
func pathKey(path []*frame.Frame) string {
	ids := make([]string, len(path))
	for i, f := range path {
		ids[i] = f.ID()
	}
	return strings.Join(ids, ";")
}

// lessPath orders two stacks by the identity of their first differing
// frame, with a shorter prefix ordering first.
func lessPath(a, b []*frame.Frame) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i].ID() < b[i].ID()
		}
	}
	return len(a) < len(b)
}
