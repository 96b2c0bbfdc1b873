// Package engine drives orders through routing, building, submission and
// confirmation. A Worker is the queue.Handler behind the job queue.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/queue"
	"github.com/uhyunpark/hyperswap/pkg/router"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// Publisher emits status updates. *pubsub.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, u order.StatusUpdate) error
}

type Config struct {
	BuildDelay  time.Duration // simulated tx construction
	SubmitDelay time.Duration // simulated network propagation
	Clock       util.Clock
}

func DefaultConfig() Config {
	return Config{
		BuildDelay:  500 * time.Millisecond,
		SubmitDelay: time.Second,
		Clock:       util.RealClock{},
	}
}

type Worker struct {
	cfg     Config
	store   storage.OrderStore
	router  *router.Router
	pub     Publisher
	metrics *metrics.Pipeline
	logger  *zap.SugaredLogger
}

var _ queue.Handler = (*Worker)(nil)

// NewWorker wires a worker. m may be nil.
func NewWorker(cfg Config, store storage.OrderStore, r *router.Router, pub Publisher, m *metrics.Pipeline, logger *zap.SugaredLogger) *Worker {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	return &Worker{
		cfg:     cfg,
		store:   store,
		router:  r,
		pub:     pub,
		metrics: m,
		logger:  util.OrNop(logger),
	}
}

// Process runs one attempt of the pipeline. Any error is an attempt
// failure; the order is left non-terminal for the queue to retry.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) error {
	start := w.cfg.Clock.Now()
	err := w.execute(ctx, d)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeRetry
		w.logger.Warnw("attempt_failed",
			"order_id", d.Job.OrderID,
			"attempt", d.Attempt,
			"max_attempts", d.MaxAttempts,
			"err", err)
	}
	w.metrics.Attempt(outcome, w.cfg.Clock.Now().Sub(start))
	return err
}

func (w *Worker) execute(ctx context.Context, d queue.Delivery) error {
	job := d.Job
	id := job.OrderID

	o, err := w.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	if o.Status.IsTerminal() {
		w.logger.Infow("order_already_terminal", "order_id", id, "status", o.Status)
		return nil
	}

	// Resume from the persisted status; a retry never moves the order back.
	dex := o.SelectedDex
	switch o.Status {
	case order.StatusPending, order.StatusRouting:
		if dex, err = w.route(ctx, o); err != nil || dex == "" {
			return err
		}
		fallthrough
	case order.StatusBuilding:
		if err := util.Sleep(ctx, w.cfg.Clock, w.cfg.BuildDelay); err != nil {
			return err
		}
		if ok, err := w.advance(ctx, id, order.StatusSubmitted, order.Fields{}, "submitted transaction via "+dex); !ok || err != nil {
			return err
		}
		if err := util.Sleep(ctx, w.cfg.Clock, w.cfg.SubmitDelay); err != nil {
			return err
		}
	}

	v, err := w.router.Venue(dex)
	if err != nil {
		return err
	}
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if t := w.router.Timeout(); t > 0 {
		execCtx, cancel = context.WithTimeout(ctx, t)
	}
	res, err := v.Execute(execCtx, job.TokenIn, job.TokenOut, job.Amount)
	cancel()
	if err != nil {
		return fmt.Errorf("execute on %s: %w", dex, err)
	}

	price := res.ExecutedPrice
	confirmed := order.Fields{ExecutedPrice: &price, TxHash: res.TxHash}
	ok, err := w.advance(ctx, id, order.StatusConfirmed, confirmed, "transaction successful")
	if !ok || err != nil {
		return err
	}
	w.metrics.Terminal(order.StatusConfirmed)
	w.logger.Infow("order_confirmed",
		"order_id", id,
		"venue", dex,
		"price", res.ExecutedPrice,
		"tx_hash", res.TxHash,
		"attempt", d.Attempt)
	return nil
}

// route picks the venue for o and persists it with building.
// It returns an empty name without error when the record went terminal
// underneath it.
func (w *Worker) route(ctx context.Context, o *order.Order) (string, error) {
	id := o.ID
	if o.Status == order.StatusPending {
		if ok, err := w.advance(ctx, id, order.StatusRouting, order.Fields{}, "finding best route"); !ok || err != nil {
			return "", err
		}
	}
	quote, err := w.router.SelectBestRoute(ctx, o.TokenIn, o.TokenOut, o.Amount)
	if err != nil {
		return "", fmt.Errorf("route: %w", err)
	}
	if _, err := w.router.Venue(quote.Venue); err != nil {
		return "", err
	}
	w.metrics.RouteSelected(quote.Venue)

	building := order.Fields{SelectedDex: quote.Venue}
	if ok, err := w.advance(ctx, id, order.StatusBuilding, building, "building transaction on "+quote.Venue); !ok || err != nil {
		return "", err
	}
	return quote.Venue, nil
}

// advance persists the transition, then publishes it. ok is false when the
// record was already terminal and nothing changed.
func (w *Worker) advance(ctx context.Context, id string, status order.Status, f order.Fields, msg string) (bool, error) {
	changed, err := w.store.UpdateStatus(ctx, id, status, f)
	if err != nil {
		return false, fmt.Errorf("persist %s: %w", status, err)
	}
	if !changed {
		w.logger.Infow("order_already_terminal", "order_id", id, "wanted", status)
		return false, nil
	}
	w.publish(ctx, order.StatusUpdate{OrderID: id, Status: status, Message: msg})
	return true, nil
}

func (w *Worker) publish(ctx context.Context, u order.StatusUpdate) {
	if err := w.pub.Publish(ctx, u); err != nil {
		w.logger.Warnw("status_publish_failed", "order_id", u.OrderID, "status", u.Status, "err", err)
	}
}

// Exhausted makes the failure permanent. Calling it again for an order that
// is already terminal neither rewrites the record nor broadcasts.
func (w *Worker) Exhausted(ctx context.Context, d queue.Delivery, cause error) {
	id := d.Job.OrderID
	reason := "retries exhausted"
	if cause != nil {
		reason = cause.Error()
	}
	w.metrics.Attempt(metrics.OutcomeExhausted, 0)

	changed, err := w.store.UpdateStatus(ctx, id, order.StatusFailed, order.Fields{ErrorMessage: reason})
	if err != nil {
		w.logger.Errorw("persist_failed_status", "order_id", id, "err", err)
		return
	}
	if !changed {
		w.logger.Infow("order_already_terminal", "order_id", id, "wanted", order.StatusFailed)
		return
	}
	w.metrics.Terminal(order.StatusFailed)
	w.logger.Errorw("order_failed", "order_id", id, "attempts", d.Attempt, "err", reason)
	w.publish(ctx, order.StatusUpdate{
		OrderID: id,
		Status:  order.StatusFailed,
		Message: "order execution failed",
		Error:   reason,
		Attempt: d.Attempt,
	})
}
