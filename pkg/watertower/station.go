package watertower

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/herlein/watertower/pkg/link"
)

// Station is the set of towers sharing one radio
type Station struct {
	towers map[int]*Tower
	ids    []int
}

// NewStation attaches one tower per configuration to radio
func NewStation(radio *link.Radio, cfgs []Config, opts Options) (*Station, error) {
	if len(cfgs) > MaxQuantity {
		return nil, fmt.Errorf("%w: %d towers, at most %d", ErrInvalidTower, len(cfgs), MaxQuantity)
	}
	s := &Station{towers: make(map[int]*Tower)}
	for _, cfg := range cfgs {
		if _, dup := s.towers[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTower, cfg.ID)
		}
		t, err := Attach(radio, cfg, opts)
		if err != nil {
			return nil, fmt.Errorf("tower %d: %w", cfg.ID, err)
		}
		s.towers[cfg.ID] = t
		s.ids = append(s.ids, cfg.ID)
	}
	sort.Ints(s.ids)
	return s, nil
}

// Tower returns the tower with the given id
func (s *Station) Tower(id int) (*Tower, error) {
	t, ok := s.towers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTowerNotFound, id)
	}
	return t, nil
}

// Towers returns all towers ordered by id
func (s *Station) Towers() []*Tower {
	out := make([]*Tower, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.towers[id])
	}
	return out
}

// SetSampleInterval changes the polling period of every tower
func (s *Station) SetSampleInterval(d time.Duration) error {
	for _, t := range s.towers {
		if err := t.SetSampleInterval(d); err != nil {
			return err
		}
	}
	return nil
}

// Run polls every tower until ctx is done, then waits for outstanding
// exchanges.
func (s *Station) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, t := range s.Towers() {
		wg.Add(1)
		go func(t *Tower) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}
	wg.Wait()
	for _, t := range s.towers {
		t.Wait()
	}
	return ctx.Err()
}
