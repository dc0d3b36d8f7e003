package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/cloud-wave-best-zizon/cart-service/internal/repository"
	"github.com/cloud-wave-best-zizon/cart-service/internal/service"
	"go.uber.org/zap"
)

type CartRevalidator interface {
	GetCart(ctx context.Context, sessionID string) *domain.Cart
	Revalidate(ctx context.Context, sessionID string) (*domain.Cart, []domain.LineItem, error)
}

// Revalidator sweeps every stored cart on an interval so carts nobody has
// opened lately still drop sold-out items and expired discounts.
type Revalidator struct {
	carts    CartRevalidator
	sessions repository.SessionLister
	interval time.Duration
	logger   *zap.Logger
}

func NewRevalidator(carts CartRevalidator, sessions repository.SessionLister, interval time.Duration, logger *zap.Logger) *Revalidator {
	return &Revalidator{
		carts:    carts,
		sessions: sessions,
		interval: interval,
		logger:   logger,
	}
}

func (w *Revalidator) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("Background revalidation disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Background revalidation started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Background revalidation stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("Revalidation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep revalidates every session once. Lookup failures are left for the
// next sweep.
func (w *Revalidator) Sweep(ctx context.Context) error {
	_, err := w.each(ctx, func(string) bool { return true })
	return err
}

// ProductChanged revalidates only the carts that hold productID. Unlike a
// sweep it reports per-cart failures, so the triggering event can be retried.
func (w *Revalidator) ProductChanged(ctx context.Context, productID string) error {
	failures, err := w.each(ctx, func(sessionID string) bool {
		return w.carts.GetCart(ctx, sessionID).Find(productID) >= 0
	})
	if err != nil {
		return err
	}
	return errors.Join(failures...)
}

// each returns per-cart failures apart from the error that stopped the pass.
func (w *Revalidator) each(ctx context.Context, match func(sessionID string) bool) ([]error, error) {
	ids, err := w.sessions.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		changed  int
		failures []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return failures, ctx.Err()
		}
		if !match(id) {
			continue
		}

		_, removed, err := w.carts.Revalidate(ctx, id)
		if err != nil {
			failures = append(failures, fmt.Errorf("session %s: %w", id, err))
			level := w.logger.Error
			if errors.Is(err, service.ErrLookupFailure) {
				level = w.logger.Warn
			}
			level("Cart revalidation failed",
				zap.String("session_id", id),
				zap.Error(err))
			continue
		}
		if len(removed) > 0 {
			changed++
		}
	}

	w.logger.Info("Revalidation sweep done",
		zap.Int("sessions", len(ids)),
		zap.Int("carts_with_removals", changed),
		zap.Int("failed", len(failures)))
	return failures, nil
}
