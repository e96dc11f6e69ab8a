package launcher

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/pkg/common/logger"
)

// Pool runs one launcher per method concurrently.
type Pool struct {
	launchers []*Launcher
	logger    *logger.Logger
}

// NewPool builds a launcher for each method from shared deps.
func NewPool(methods []migration.Method, deps Deps) *Pool {
	p := &Pool{logger: deps.Logger.With("component", "launcher_pool")}
	for _, m := range methods {
		p.launchers = append(p.launchers, New(m, deps))
	}
	return p
}

// Run starts every launcher and waits for all of them. A fatal error in one
// launcher cancels the rest and is returned. Cancellation of ctx is not an
// error.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range p.launchers {
		g.Go(func() error {
			p.logger.Info(gctx, "Launcher started", "method", l.Method())
			err := l.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error(gctx, "Launcher failed", "method", l.Method(), "error", err)
				return err
			}
			p.logger.Info(gctx, "Launcher finished", "method", l.Method())
			return nil
		})
	}

	return g.Wait()
}
