package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/jonhoo/stuck/pkg/frame"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// collect runs the reader over input and gathers every emitted sample.
func collect(t *testing.T, r *Reader, input string) []Sample {
	t.Helper()
	out := make(chan Sample, 64)
	done := make(chan struct{})
	var samples []Sample
	go func() {
		defer close(done)
		for s := range out {
			samples = append(samples, s)
		}
	}()
	r.Run(strings.NewReader(input), out)
	<-done
	return samples
}

func TestRunParsesRecord(t *testing.T) {
	reg := frame.NewRegistry()
	r := NewReader(reg, quietLogger())

	input := "Attaching 1 probe...\n" +
		"123456 42\n" +
		"        libc.so.6`read+0x11\n" +
		"        app`do_work\n" +
		"        app`main\n" +
		"\n"

	samples := collect(t, r, input)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}

	want := Sample{
		TID:       42,
		Timestamp: 123456,
		Stack: []*frame.Frame{
			reg.Intern("main", "app"),
			reg.Intern("do_work", "app"),
			reg.Intern("read", "libc.so.6"),
		},
	}
	if diff := cmp.Diff(want, samples[0]); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
	if r.Skipped() != 0 {
		t.Errorf("Skipped() = %d, want 0", r.Skipped())
	}
}

func TestRunHeaderTerminatesPreviousRecord(t *testing.T) {
	reg := frame.NewRegistry()
	r := NewReader(reg, quietLogger())

	// no blank line between records: the second header flushes the first
	input := "100 1\n" +
		"        poll\n" +
		"200 2\n" +
		"        nanosleep\n" +
		"\n"

	samples := collect(t, r, input)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].TID != 1 || samples[1].TID != 2 {
		t.Errorf("tids = %d, %d; want 1, 2", samples[0].TID, samples[1].TID)
	}
}

func TestRunSkipsMalformedHeader(t *testing.T) {
	reg := frame.NewRegistry()
	r := NewReader(reg, quietLogger())

	input := "garbage 7\n" +
		"        orphan_frame\n" +
		"\n" +
		"300 7\n" +
		"        still_counted\n" +
		"\n"

	samples := collect(t, r, input)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].TID != 7 || samples[0].Stack[0].Symbol != "still_counted" {
		t.Errorf("surviving record = %+v, want tid 7 / still_counted", samples[0])
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
	if r.Samples() != 1 {
		t.Errorf("Samples() = %d, want 1", r.Samples())
	}
}

func TestRunCountsEmptyStackAsSkipped(t *testing.T) {
	r := NewReader(frame.NewRegistry(), quietLogger())

	samples := collect(t, r, "100 1\n\n200 1\n        work\n\n")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestRunFinalRecordWithoutTrailingNewline(t *testing.T) {
	r := NewReader(frame.NewRegistry(), quietLogger())

	samples := collect(t, r, "100 3\n        innermost\n        main")
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if got := samples[0].Stack[0].Symbol; got != "main" {
		t.Errorf("root frame = %q, want %q (input is leaf-first)", got, "main")
	}
}

func TestParseFrameForms(t *testing.T) {
	reg := frame.NewRegistry()
	r := NewReader(reg, quietLogger())

	tests := []struct {
		line   string
		symbol string
		module string
	}{
		{"        libc.so.6`__poll+0x4f", "__poll", "libc.so.6"},
		{"\tapp`main", "main", "app"},
		{"        0x7f3a91c04e50", "0x7f3a91c04e50", ""},
		{"        futex_wait+0x123", "futex_wait", ""},
	}

	for _, tt := range tests {
		f, ok := r.parseFrame(tt.line)
		if !ok {
			t.Errorf("parseFrame(%q) rejected", tt.line)
			continue
		}
		if f.Symbol != tt.symbol || f.Module != tt.module {
			t.Errorf("parseFrame(%q) = (%q, %q), want (%q, %q)",
				tt.line, f.Symbol, f.Module, tt.symbol, tt.module)
		}
	}
}

func TestRunEmptyInputEmitsNothing(t *testing.T) {
	r := NewReader(frame.NewRegistry(), quietLogger())

	samples := collect(t, r, "")
	if len(samples) != 0 {
		t.Fatalf("got %d samples, want 0", len(samples))
	}
	if r.Skipped() != 0 {
		t.Errorf("Skipped() = %d, want 0", r.Skipped())
	}
}
