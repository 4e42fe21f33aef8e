package bot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

const DefaultTimeout = time.Millisecond

// Stats counts the outcome of the decisions requested from a bot
type Stats struct {
	Decisions uint64 `json:"decisions"`
	Timeouts  uint64 `json:"timeouts"`
	Errors    uint64 `json:"errors"`
	Skipped   uint64 `json:"skipped"` // previous decision still running
}

// Host runs a Bot under a decision budget.
// Whenever the bot does not deliver a usable plan in time the host answers
// with the idle plan.
type Host struct {
	name      string
	bot       Bot
	timeout   time.Duration
	l         *log.Logger
	decisions atomic.Uint64
	timeouts  atomic.Uint64
	failures  atomic.Uint64
	skipped   atomic.Uint64
	busy      atomic.Bool // a decision goroutine is running
	timeoutC  metric.Int64Counter
	errorC    metric.Int64Counter
}

type HostOption func(h *Host)

// WithTimeout sets the decision budget. Values <= 0 keep the default.
func WithTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithName(name string) HostOption {
	return func(h *Host) {
		h.name = name
	}
}

func WithLogger(l *log.Logger) HostOption {
	return func(h *Host) {
		h.l = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) HostOption {
	return func(h *Host) {
		h.setupMetrics(mp)
	}
}

func NewHost(b Bot, opts ...HostOption) *Host {
	ret := &Host{
		bot:     b,
		timeout: DefaultTimeout,
		l:       log.Default().Named("bot"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.name == "" {
		ret.name = NameOf(b, "bot")
	}
	if ret.timeoutC == nil {
		ret.setupMetrics(otel.GetMeterProvider())
	}
	return ret
}

func (h *Host) setupMetrics(mp metric.MeterProvider) {
	meter := mp.Meter("botrace/bot")
	var err error
	if h.timeoutC, err = meter.Int64Counter("botrace.bot.timeouts",
		metric.WithDescription("decisions replaced by idle due to timeout")); err != nil {
		log.Warn("could not create counter", log.ErrorField(err))
	}
	if h.errorC, err = meter.Int64Counter("botrace.bot.errors",
		metric.WithDescription("decisions replaced by idle due to errors")); err != nil {
		log.Warn("could not create counter", log.ErrorField(err))
	}
}

func (h *Host) Name() string {
	return h.name
}

func (h *Host) Bot() Bot {
	return h.bot
}

func (h *Host) Timeout() time.Duration {
	return h.timeout
}

func (h *Host) Stats() Stats {
	return Stats{
		Decisions: h.decisions.Load(),
		Timeouts:  h.timeouts.Load(),
		Errors:    h.failures.Load(),
		Skipped:   h.skipped.Load(),
	}
}

type decision struct {
	plan model.ActionPlan
	err  error
}

// Decide asks the bot for its plan. It never fails, problems are logged and
// answered with model.IdlePlan.
// The bot may keep running in the background after the budget is exceeded,
// its late answer is discarded. While such a call is still running the bot
// is not asked again, at most one decision per host is in flight.
func (h *Host) Decide(ctx context.Context, v *view.BotView) model.ActionPlan {
	h.decisions.Add(1)
	if h.bot == nil {
		h.recordError(ctx, ErrBotNotLoaded)
		return model.IdlePlan()
	}
	if !h.busy.CompareAndSwap(false, true) {
		h.skipped.Add(1)
		h.l.Debug("previous decision still running", log.String("bot", h.name))
		return model.IdlePlan()
	}
	dctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ch := make(chan decision, 1)
	go func() {
		defer h.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				ch <- decision{err: fmt.Errorf("%w: %v", ErrBotPanic, r)}
			}
		}()
		p, err := h.bot.Decide(dctx, v)
		ch <- decision{plan: p, err: err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			if errors.Is(d.err, context.DeadlineExceeded) {
				h.recordTimeout(ctx)
			} else {
				h.recordError(ctx, d.err)
			}
			return model.IdlePlan()
		}
		return d.plan.Normalize()
	case <-dctx.Done():
		h.recordTimeout(ctx)
		return model.IdlePlan()
	}
}

func (h *Host) recordTimeout(ctx context.Context) {
	h.timeouts.Add(1)
	if h.timeoutC != nil {
		h.timeoutC.Add(ctx, 1, metric.WithAttributes(attribute.String("bot", h.name)))
	}
	h.l.Debug("decision timed out",
		log.String("bot", h.name),
		log.Duration("budget", h.timeout))
}

func (h *Host) recordError(ctx context.Context, err error) {
	h.failures.Add(1)
	if h.errorC != nil {
		h.errorC.Add(ctx, 1, metric.WithAttributes(attribute.String("bot", h.name)))
	}
	h.l.Debug("decision failed",
		log.String("bot", h.name),
		log.ErrorField(err))
}
