// Package bot contains the contract between the race and the programs
// driving the cars, together with a few builtin drivers.
package bot

import (
	"context"
	"errors"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

var (
	ErrBotNotLoaded = errors.New("bot not loaded")
	ErrBotPanic     = errors.New("bot panicked")
	ErrUnknownBot   = errors.New("unknown bot")
)

// Bot decides what a car does in the next tick.
// Implementations must honor ctx, the host abandons the call once the
// decision budget is used up.
type Bot interface {
	Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error)
}

// Func adapts a function to the Bot interface
type Func func(ctx context.Context, v *view.BotView) (model.ActionPlan, error)

func (f Func) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	return f(ctx, v)
}

// Named is implemented by bots that know their display name
type Named interface {
	Name() string
}

// NameOf returns the display name of b or fallback
func NameOf(b Bot, fallback string) string {
	if n, ok := b.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fallback
}

// Close releases resources held by b, if any
func Close(b Bot) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
