//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

func sprint(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	return model.ActionPlan{Speed: model.ActionSprint, Special: []model.Action{model.ActionJump, model.ActionJump}}, nil
}

func TestHost_Decide(t *testing.T) {
	tests := []struct {
		name  string
		bot   Bot
		want  model.ActionPlan
		stats Stats
	}{
		{
			name:  "plan is normalized",
			bot:   Func(sprint),
			want:  model.ActionPlan{Speed: model.ActionSprint, Special: []model.Action{model.ActionJump}},
			stats: Stats{Decisions: 1},
		},
		{
			name: "slow bot falls back to idle",
			bot: Func(func(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
				time.Sleep(50 * time.Millisecond)
				return sprint(ctx, v)
			}),
			want:  model.IdlePlan(),
			stats: Stats{Decisions: 1, Timeouts: 1},
		},
		{
			name: "bot honoring the deadline",
			bot: Func(func(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
				<-ctx.Done()
				return model.ActionPlan{}, ctx.Err()
			}),
			want:  model.IdlePlan(),
			stats: Stats{Decisions: 1, Timeouts: 1},
		},
		{
			name: "error falls back to idle",
			bot: Func(func(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
				return model.ActionPlan{Speed: model.ActionBoost}, errors.New("boom")
			}),
			want:  model.IdlePlan(),
			stats: Stats{Decisions: 1, Errors: 1},
		},
		{
			name: "panic falls back to idle",
			bot: Func(func(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
				panic("oops")
			}),
			want:  model.IdlePlan(),
			stats: Stats{Decisions: 1, Errors: 1},
		},
		{
			name:  "missing bot",
			bot:   nil,
			want:  model.IdlePlan(),
			stats: Stats{Decisions: 1, Errors: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHost(tt.bot, WithTimeout(10*time.Millisecond), WithName("test"))
			got := h.Decide(context.Background(), &view.BotView{})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stats, h.Stats())
		})
	}
}

func TestHost_Defaults(t *testing.T) {
	h := NewHost(&SimpleBot{}, WithTimeout(0))
	assert.Equal(t, DefaultTimeout, h.Timeout())
	assert.Equal(t, "simple", h.Name())
	assert.Equal(t, "bot", NewHost(Func(sprint)).Name())
}

func TestHost_DecideSkipsWhileBotIsBusy(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	stuck := Func(func(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
		if calls.Add(1) == 1 {
			<-release // ignores ctx
		}
		return sprint(ctx, v)
	})
	h := NewHost(stuck, WithTimeout(5*time.Millisecond), WithName("stuck"))

	for range 5 {
		assert.Equal(t, model.IdlePlan(), h.Decide(context.Background(), &view.BotView{}))
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Stats{Decisions: 5, Timeouts: 1, Skipped: 4}, h.Stats())

	close(release)
	assert.Eventually(t, func() bool {
		return h.Decide(context.Background(), &view.BotView{}).Speed == model.ActionSprint
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}
