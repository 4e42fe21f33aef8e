package track

import (
	"context"
	"time"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/utils/cache"
	"github.com/mpapenbr/botrace/pkg/utils/cache/loadercache"
)

// Key identifies a generated track
type Key struct {
	Seed         int64
	Difficulty   Difficulty
	FuelStations int
	Length       float64
}

// NewCache returns a cache of generated tracks. Cached tracks are shared,
// callers must not modify them.
func NewCache(ttl time.Duration) cache.Cache[Key, model.Track] {
	return loadercache.New(
		loadercache.WithExpiration[Key, model.Track](ttl),
		loadercache.WithLogger[Key, model.Track](log.Default().Named("track")),
		loadercache.WithLoader(func(ctx context.Context, k Key) (*model.Track, error) {
			opts := []GeneratorOption{
				WithDifficulty(k.Difficulty),
				WithFuelStations(k.FuelStations),
			}
			if k.Length > 0 {
				opts = append(opts, WithLength(k.Length))
			}
			return NewGenerator(opts...).Generate(k.Seed)
		}),
	)
}
