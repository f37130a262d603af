// Command shaveyaks runs a small instrumented workload and prints the metrics
// its spans produce.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/spanmetricz"
	"github.com/zoobzio/spanmetricz/promsink"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := LoadConfig(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if _, err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("yak shaving failed", zap.Error(err))
		os.Exit(1)
	}
}

// result reports what a run did.
type result struct {
	Shaved      int
	LeakedSpans int
}

// run wires the bridge to its sinks and shaves the configured yaks.
func run(ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer) (result, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return result{}, err
	}

	sinks := spanmetricz.Fanout{newConsoleSink(out)}

	var reg *prometheus.Registry
	if cfg.Prometheus {
		reg = prometheus.NewRegistry()
		sinks = append(sinks, promsink.New(reg))
	}

	var sink spanmetricz.Sink = sinks
	var async *spanmetricz.AsyncSink
	if cfg.AsyncQueue > 0 {
		async, err = spanmetricz.NewAsyncSink(sinks, 1, cfg.AsyncQueue)
		if err != nil {
			return result{}, fmt.Errorf("failed to start async sink: %w", err)
		}
		sink = async
	}

	bridge := spanmetricz.New(sink,
		spanmetricz.WithLogger(logger.Named("spanmetricz")),
		spanmetricz.WithTimingMode(mode),
		spanmetricz.WithIdleReport(cfg.ReportIdle),
	)

	logger.Debug("preparing to shave yaks", zap.Int("yaks", cfg.Yaks))

	shaver := newYakShaver(bridge, logger, cfg.FailYak)
	shaved, err := shaver.shaveAll(ctx, cfg.Yaks, cfg.Workers)

	if async != nil {
		async.Close()
		if dropped := async.DroppedCount(); dropped > 0 {
			logger.Warn("metrics dropped by async sink", zap.Uint64("dropped", dropped))
		}
	}
	if err != nil {
		return result{Shaved: shaved}, fmt.Errorf("failed to shave yaks: %w", err)
	}

	logger.Debug("yak shaving completed.",
		zap.Int("shaved", shaved),
		zap.Bool("all_yaks_shaved", shaved == cfg.Yaks),
	)

	leaked := bridge.ActiveSpans()
	if leaked > 0 {
		logger.Warn("spans were never closed", zap.Int("spans", leaked))
	}

	if reg != nil {
		if err := printFamilies(out, reg); err != nil {
			return result{Shaved: shaved, LeakedSpans: leaked}, err
		}
	}

	return result{Shaved: shaved, LeakedSpans: leaked}, nil
}

// printFamilies writes a one-line summary of every gathered metric family.
func printFamilies(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})

	for _, f := range families {
		for _, m := range f.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			if _, err := fmt.Fprintf(out, "prometheus -> %s(name=%s, value=%g)\n",
				f.GetType().String(), f.GetName(), value); err != nil {
				return err
			}
		}
	}
	return nil
}
