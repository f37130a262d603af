package main

import (
	"context"
	"sync/atomic"

	"github.com/zoobzio/spanmetricz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	shaveAllMeta = &spanmetricz.Metadata{Target: "shaveyaks", Name: "shaving_yaks", Level: spanmetricz.LevelTrace}
	shaveMeta    = &spanmetricz.Metadata{Target: "shaveyaks::yak", Name: "shave", Level: spanmetricz.LevelTrace}
	unshavedMeta = &spanmetricz.Metadata{Target: "shaveyaks::thingy", Name: "handle_unshaved", Level: spanmetricz.LevelInfo}
)

// yakShaver is the instrumented workload.
type yakShaver struct {
	sub     spanmetricz.Subscriber
	logger  *zap.Logger
	events  *zap.Logger
	failYak int
}

func newYakShaver(sub spanmetricz.Subscriber, logger *zap.Logger, failYak int) *yakShaver {
	return &yakShaver{
		sub:     sub,
		logger:  logger,
		events:  logger.Named("yak_events"),
		failYak: failYak,
	}
}

// shave tries to shave one yak. The yak numbered failYak cannot be found.
func (y *yakShaver) shave(yak int) bool {
	span := spanmetricz.Start(y.sub, shaveMeta, spanmetricz.Fields{"yak": yak})
	defer span.Close()
	defer span.Enter().Exit()

	y.logger.Debug("hello! I'm gonna shave a yak.",
		zap.Int("yak", yak),
		zap.String("excitement", "yay!"),
	)
	if yak == y.failYak {
		y.events.Warn("could not locate yak!", zap.Int("yak", yak))
		return false
	}
	y.events.Debug("yak shaved successfully", zap.Int("yak", yak))
	return true
}

// handleUnshaved deals with a yak that got away.
func (y *yakShaver) handleUnshaved(yak int) {
	span := spanmetricz.Start(y.sub, unshavedMeta, spanmetricz.Fields{"yak": yak})
	defer span.Close()
	span.InScope(func() {
		y.logger.Info("pretending nothing happened", zap.Int("yak", yak))
	})
}

// shaveAll shaves yaks 1..yaks using at most workers goroutines and returns
// how many were shaved.
func (y *yakShaver) shaveAll(ctx context.Context, yaks, workers int) (int, error) {
	span := spanmetricz.Start(y.sub, shaveAllMeta, spanmetricz.Fields{"yaks_to_shave": yaks})
	defer span.Close()
	defer span.Enter().Exit()

	y.logger.Info("shaving yaks", zap.Int("yaks", yaks), zap.Int("workers", workers))

	var shaved atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for yak := 1; yak <= yaks; yak++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ok := y.shave(yak)
			y.events.Debug("yak visited", zap.Int("yak", yak), zap.Bool("shaved", ok))

			if !ok {
				y.handleUnshaved(yak)
				y.logger.Error("failed to shave yak!", zap.Int("yak", yak))
				return nil
			}
			y.events.Debug("progress", zap.Int64("yaks_shaved", shaved.Add(1)))
			return nil
		})
	}

	err := g.Wait()
	return int(shaved.Load()), err
}
