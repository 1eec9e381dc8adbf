package media

import (
	"context"
	"time"
)

// ImageLister returns the image names still referenced by plants.
type ImageLister interface {
	ImageNames(ctx context.Context) ([]string, error)
}

// Logger is satisfied by logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// RunCleanup sweeps unreferenced images once immediately and then every
// interval until ctx is cancelled. Files younger than interval are kept.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration, plants ImageLister, logger Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.cleanup(ctx, interval, plants, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Store) cleanup(ctx context.Context, grace time.Duration, plants ImageLister, logger Logger) {
	names, err := plants.ImageNames(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("listing plant images failed", "error", err)
		}
		return
	}

	removed, err := s.Sweep(names, s.now().Add(-grace))
	if err != nil {
		logger.Error("removing unused images failed", "error", err)
	}
	if removed > 0 {
		logger.Info("removed unused images", "count", removed, "dir", s.dir)
	}
}
