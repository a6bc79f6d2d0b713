package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonhoo/stuck/pkg/engine"
	"github.com/jonhoo/stuck/pkg/frame"
	"github.com/jonhoo/stuck/pkg/ingest"
	"github.com/jonhoo/stuck/pkg/render"
	"github.com/jonhoo/stuck/pkg/tracker"
)

var (
	flagInterval  time.Duration
	flagReplay    bool
	flagMinWeight int
	flagNoColor   bool
	flagLogFile   string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "stuck",
	Short: "A live profile visualizer",
	Long: `A live profile visualizer.

Pipe the output of the appropriate bpftrace command into this program,
and enjoy. Happy profiling!

The display refreshes until the input stream ends; closing stdin is the
only way to stop it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().DurationVar(&flagInterval, "interval", 200*time.Millisecond, "redraw cadence")
	rootCmd.Flags().BoolVar(&flagReplay, "replay", false, "treat input as a recorded trace and emulate its timing")
	rootCmd.Flags().IntVar(&flagMinWeight, "min-weight", 2, "hide groups below this weight (0 shows everything)")
	rootCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "append diagnostic logs to this file")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log at debug level (needs --log-file)")
}

func run() error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return errors.New("don't type input to this program, that's silly")
	}

	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	reg := frame.NewRegistry()
	reader := ingest.NewReader(reg, logger)
	tr := tracker.New()

	onTerminal := isatty.IsTerminal(os.Stdout.Fd())
	renderer := render.New(os.Stdout)
	renderer.SetColor(onTerminal && !flagNoColor)
	renderer.SetRefresh(onTerminal)
	renderer.SetHideRootOnly(true)
	renderer.SetMinWeight(flagMinWeight)

	e := engine.New(tr, renderer, reader, logger, engine.Options{
		Interval: flagInterval,
		Replay:   flagReplay,
	})

	// samples flow from the ingestion goroutine to the aggregation
	// owner over this channel; the reader closes it at end of stream
	samples := make(chan ingest.Sample, 4096)
	go reader.Run(os.Stdin, samples)

	renderer.Start()
	defer renderer.Stop()
	e.Run(samples)
	return nil
}

// newLogger builds the run's logger. Without --log-file everything is
// discarded: log lines on the live display's terminal would corrupt it.
func newLogger() (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if flagLogFile == "" {
		return logger, func() {}, nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, func() { f.Close() }, nil
}
