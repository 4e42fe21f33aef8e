package utils

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/race"
)

var (
	ErrRaceNotFound = errors.New("race not found")
	ErrRaceExists   = errors.New("race already registered")
)

const DefaultStaleDuration = 10 * time.Minute

// NewRaceID returns a new unique race id
func NewRaceID() string {
	return uuid.NewString()
}

type RaceEntry struct {
	Race    *race.Race
	Created time.Time
	Done    time.Time // zero while the race loop is active
}

// RaceRegistry keeps the races of a server.
// Races that are done are removed once they are older than the stale duration.
type RaceRegistry struct {
	mu            sync.RWMutex
	lookup        map[string]*RaceEntry
	staleDuration time.Duration
	now           func() time.Time
}

type RegistryOption func(r *RaceRegistry)

func WithStaleDuration(d time.Duration) RegistryOption {
	return func(r *RaceRegistry) {
		r.staleDuration = d
	}
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *RaceRegistry) {
		r.now = now
	}
}

func NewRaceRegistry(opts ...RegistryOption) *RaceRegistry {
	ret := &RaceRegistry{
		lookup:        make(map[string]*RaceEntry),
		staleDuration: DefaultStaleDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (e *RaceRegistry) Add(r *race.Race) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.lookup[r.ID()]; ok {
		return ErrRaceExists
	}
	e.lookup[r.ID()] = &RaceEntry{Race: r, Created: e.now()}
	return nil
}

// Get returns a copy of the entry
func (e *RaceRegistry) Get(id string) (*RaceEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if ret, ok := e.lookup[id]; ok {
		c := *ret
		return &c, nil
	}
	return nil, ErrRaceNotFound
}

// MarkDone records the end of the race loop, starting the stale period
func (e *RaceRegistry) MarkDone(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ret, ok := e.lookup[id]; ok {
		ret.Done = e.now()
	}
}

// Remove closes the race and removes it from the registry
func (e *RaceRegistry) Remove(id string) error {
	e.mu.Lock()
	ret, ok := e.lookup[id]
	delete(e.lookup, id)
	e.mu.Unlock()
	if !ok {
		return ErrRaceNotFound
	}
	ret.Race.Close()
	return nil
}

// GetRaces returns copies of all entries, oldest first
func (e *RaceRegistry) GetRaces() []*RaceEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ret := make([]*RaceEntry, 0, len(e.lookup))
	for _, v := range e.lookup {
		c := *v
		ret = append(ret, &c)
	}
	slices.SortFunc(ret, func(a, b *RaceEntry) int {
		return a.Created.Compare(b.Created)
	})
	return ret
}

// RemoveStale removes races that are done for longer than the stale duration.
// It returns the number of removed races.
func (e *RaceRegistry) RemoveStale() int {
	now := e.now()
	e.mu.Lock()
	stale := make([]*RaceEntry, 0)
	for k, v := range e.lookup {
		if !v.Done.IsZero() && now.Sub(v.Done) > e.staleDuration {
			stale = append(stale, v)
			delete(e.lookup, k)
		}
	}
	e.mu.Unlock()
	for _, v := range stale {
		log.Debug("removing stale race", log.String("race", v.Race.ID()))
		v.Race.Close()
	}
	return len(stale)
}

// Janitor calls RemoveStale every interval until ctx is done
func (e *RaceRegistry) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := e.RemoveStale(); n > 0 {
				log.Info("removed stale races", log.Int("count", n))
			}
		}
	}
}

// Clear closes and removes all races
func (e *RaceRegistry) Clear() {
	e.mu.Lock()
	old := e.lookup
	e.lookup = make(map[string]*RaceEntry)
	e.mu.Unlock()
	for _, v := range old {
		v.Race.Close()
	}
}
