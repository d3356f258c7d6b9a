// Package mirror delivers saved CSV files to secondary destinations.
package mirror

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds one fan-out across all mirrors.
const DefaultTimeout = 20 * time.Second

// Mirror copies a file to a remote destination.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, filename string, content []byte) error
}

// Result summarizes a fan-out.
type Result struct {
	Attempted int
	Succeeded int
	Failed    []string
}

// OK reports whether every attempted mirror succeeded.
func (r Result) OK() bool {
	return r.Attempted > 0 && len(r.Failed) == 0
}

// Fanout runs every mirror concurrently and returns once all of them finish
// or ctx (capped at DefaultTimeout) is done. A mirror still running at the
// deadline counts as failed. Failures are logged and reported but never
// returned as an error.
func Fanout(ctx context.Context, logger *slog.Logger, mirrors []Mirror, filename string, content []byte) Result {
	return fanout(ctx, DefaultTimeout, logger, mirrors, filename, content)
}

func fanout(ctx context.Context, timeout time.Duration, logger *slog.Logger, mirrors []Mirror, filename string, content []byte) Result {
	res := Result{Attempted: len(mirrors)}
	if len(mirrors) == 0 {
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errs := make([]error, len(mirrors))
	var g errgroup.Group
	for i, m := range mirrors {
		g.Go(func() error {
			errs[i] = runBounded(ctx, m, filename, content)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		name := mirrors[i].Name()
		if err != nil {
			logger.Warn("mirror failed", "mirror", name, "file", filename, "error", err)
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Succeeded++
		logger.Info("mirrored file", "mirror", name, "file", filename)
	}
	return res
}

// runBounded abandons m once ctx is done, even if m ignores ctx.
func runBounded(ctx context.Context, m Mirror, filename string, content []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- m.Mirror(ctx, filename, content)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
