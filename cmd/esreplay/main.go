// Command esreplay re-runs saved fuzz corpora and crash artifacts through a
// registered elementary-stream parser, outside the fuzzing engine. Inputs are
// fed raw by default; with -ts they are treated as MPEG-TS captures and the
// extracted elementary stream is fed instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/zsiec/esfuzz/es"
	"github.com/zsiec/esfuzz/harness"
	"github.com/zsiec/esfuzz/internal/corpus"
	"github.com/zsiec/esfuzz/mpegts"
	"github.com/zsiec/esfuzz/replay"
)

var version = "dev"

func init() {
	// Built-in parser that accepts every input. Useful for exercising the
	// replay plumbing itself and as a template for registering real parsers.
	harness.Register("discard", func(onConfig es.ConfigHandler, onUnit es.UnitHandler, mode bool) es.Parser {
		return discardParser{}
	})
}

type discardParser struct{}

func (discardParser) Parse(data []byte, pts, dts es.Timestamp) error { return nil }
func (discardParser) Flush() error                                   { return nil }

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	parserName := flag.String("parser", "discard", "registered parser to replay through")
	mode := flag.Bool("mode", true, "mode flag forwarded to the parser factory")
	tsMode := flag.Bool("ts", false, "treat inputs as MPEG-TS captures and feed the demuxed elementary stream")
	workers := flag.Int("workers", envOrInt("REPLAY_WORKERS", 4), "worker pool size for raw replay")
	pid := flag.Uint("pid", 0, "with -ts: feed only this PID (0 selects by stream type)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] corpus-path...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if !validPID(*pid) {
		fmt.Fprintf(os.Stderr, "invalid -pid %d: PIDs are 13-bit (0-8191)\n", *pid)
		os.Exit(2)
	}

	factory, ok := harness.Lookup(*parserName)
	if !ok {
		slog.Error("unknown parser", "parser", *parserName, "available", strings.Join(harness.Parsers(), ", "))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping", "signal", sig)
		cancel()
	}()

	slog.Info("esreplay starting",
		"version", version,
		"parser", *parserName,
		"mode", *mode,
		"ts", *tsMode,
		"paths", flag.NArg(),
	)

	var err error
	if *tsMode {
		err = replayTS(ctx, factory, *mode, uint16(*pid), flag.Args())
	} else {
		err = replayRaw(ctx, factory, *mode, *workers, flag.Args())
	}
	if err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func replayRaw(ctx context.Context, factory es.Factory, mode bool, workers int, paths []string) error {
	r := replay.NewRunner(harness.New(factory, mode), replay.WithWorkers(workers))
	stats, err := r.Run(ctx, paths)
	if err != nil {
		return err
	}
	slog.Info("replay complete",
		"inputs", stats.Inputs,
		"skipped", stats.Skipped,
		"bytes", stats.Bytes,
	)
	return nil
}

// replayTS demuxes each input as an MPEG-TS capture and feeds the selected
// elementary stream through a fresh parser. Parse errors are the expected
// outcome for corpus junk and are logged, not fatal; only I/O failures stop
// the run.
func replayTS(ctx context.Context, factory es.Factory, mode bool, pid uint16, paths []string) error {
	files, err := corpus.Walk(paths)
	if err != nil {
		return err
	}

	var fed, rejected int
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("esreplay: %w", err)
		}

		p := factory(harness.DiscardConfig, harness.DiscardUnit, mode)
		d := mpegts.NewDemuxer(ctx, f)
		var opts []func(*mpegts.Feeder)
		if pid != 0 {
			opts = append(opts, mpegts.FeederOptPID(pid))
		}
		feeder := mpegts.NewFeeder(d, p, opts...)

		err = feeder.Run()
		f.Close()
		switch {
		case err == nil:
			fed += feeder.Fed()
			slog.Debug("capture replayed", "file", file, "buffers", feeder.Fed())
		case errors.Is(err, context.Canceled):
			return err
		default:
			rejected++
			slog.Debug("parser rejected capture", "file", file, "error", err)
		}
	}

	slog.Info("replay complete", "captures", len(files), "buffers", fed, "rejected", rejected)
	return nil
}

// validPID reports whether p fits the 13-bit transport-stream PID space.
func validPID(p uint) bool {
	return p <= 0x1FFF
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
