// Package ingest turns bpftrace-style stack sample text into Samples.
//
// The expected input is the output of a bpftrace profiling one-liner piped
// to stdin: a record starts with an unindented "<elapsed-ns> <tid>" header
// line, followed by one indented line per stack frame (innermost first, as
// bpftrace prints ustack), and ends at a blank line or the next header.
// Sampler chatter ("Attaching ...", "Error ...") is ignored. Malformed
// records are skipped and counted, never fatal.
package ingest

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jonhoo/stuck/pkg/frame"
)

// Sample is one observation of one thread: its id, the sampler's
// monotonic timestamp in nanoseconds, and the call stack ordered from
// root (index 0) to the innermost executing frame. Samples are immutable
// once emitted.
type Sample struct {
	TID       uint64
	Timestamp uint64
	Stack     []*frame.Frame
}

// Reader consumes sampler output line by line and emits Samples.
type Reader struct {
	reg    *frame.Registry
	logger *logrus.Logger

	samples atomic.Uint64
	skipped atomic.Uint64
}

// NewReader creates a reader interning frames into reg. A nil logger
// falls back to a default logger at warn level.
func NewReader(reg *frame.Registry, logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Reader{
		reg:    reg,
		logger: logger,
	}
}

// Samples returns the number of well-formed samples emitted so far.
func (r *Reader) Samples() uint64 {
	return r.samples.Load()
}

// Skipped returns the number of malformed records discarded so far.
func (r *Reader) Skipped() uint64 {
	return r.skipped.Load()
}

// Run reads records from in until EOF, sending each completed Sample on
// out. It closes out before returning; the stream ending is the
// program's sole termination trigger. Run blocks on slow input and is
// meant to be called from its own goroutine.
func (r *Reader) Run(in io.Reader, out chan<- Sample) {
	defer close(out)

	var (
		cur     Sample // record under construction
		open    bool   // header parsed, collecting frames
		scanner = bufio.NewScanner(in)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if !open {
			return
		}
		open = false
		if len(cur.Stack) == 0 {
			// a header with no decomposable stack is malformed
			r.skip("empty stack", cur.TID)
			return
		}
		// bpftrace prints leaf-first; store root-first
		for i, j := 0, len(cur.Stack)-1; i < j; i, j = i+1, j-1 {
			cur.Stack[i], cur.Stack[j] = cur.Stack[j], cur.Stack[i]
		}
		r.samples.Add(1)
		out <- cur
		cur = Sample{}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "Attaching"), strings.HasPrefix(line, "Error"):
			// sampler chatter, not a record

		case strings.HasPrefix(line, " "), strings.HasPrefix(line, "\t"):
			if !open {
				// frame line belonging to an already-skipped record
				continue
			}
			if f, ok := r.parseFrame(line); ok {
				cur.Stack = append(cur.Stack, f)
			}

		case strings.TrimSpace(line) == "":
			flush()

		default:
			flush()
			tid, ts, ok := parseHeader(line)
			if !ok {
				r.skip("unparseable header", 0)
				continue
			}
			cur = Sample{TID: tid, Timestamp: ts}
			open = true
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		r.logger.WithField("error", err).Warn("input stream error, treating as end of stream")
	}
}

func (r *Reader) skip(reason string, tid uint64) {
	r.skipped.Add(1)
	r.logger.WithFields(logrus.Fields{
		"reason": reason,
		"tid":    tid,
	}).Debug("Skipped malformed record")
}

// parseHeader extracts the thread id and timestamp from an unindented
// "<elapsed-ns> <tid>" record header.
func parseHeader(line string) (tid, ts uint64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, false
	}
	ts, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	tid, err = strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return tid, ts, true
}

// parseFrame interns one indented frame line. Forms handled:
// "  symbol+0x1a", "  module`symbol", "  0x7f3a91c04e50". Whatever text
// survives cleanup is the identity; resolution quality is the sampler's
// problem, not ours.
func (r *Reader) parseFrame(line string) (*frame.Frame, bool) {
	tok := strings.TrimSpace(line)
	if tok == "" {
		return nil, false
	}

	// strip trailing offset like "+0x1a"
	if idx := strings.LastIndex(tok, "+"); idx > 0 {
		tok = tok[:idx]
	}

	var module string
	if idx := strings.Index(tok, "`"); idx >= 0 {
		module = tok[:idx]
		tok = tok[idx+1:]
	}
	if tok == "" {
		return nil, false
	}
	return r.reg.Intern(tok, module), true
}
