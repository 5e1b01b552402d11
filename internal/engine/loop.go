package engine

import (
	"context"
	"log"
	"time"

	"github.com/lazypower/tiermem/internal/eviction"
)

// TickReport summarises one maintenance cycle.
type TickReport struct {
	At        time.Time `json:"at"`
	Decayed   int       `json:"decayed"`
	Promoted  int       `json:"promoted"`
	Demoted   int       `json:"demoted"`
	Deleted   int       `json:"deleted"`
	Evicted   int       `json:"evicted"`
	Exhausted []string  `json:"exhausted,omitempty"`

	records []eviction.Record
}

// Tick runs one maintenance cycle: decay, then consolidation, then
// eviction against the post-consolidation state.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.mu.Lock()
	now := e.now()
	r := TickReport{At: now}
	e.decayAll(now, &r)
	e.consolidateAll(now, &r)
	e.enforceAll(now, &r)
	e.ticks++
	e.lastTick = now
	pending := r.records
	e.mu.Unlock()

	e.flush(ctx, pending)
	return r
}

// StartMaintenance ticks once now and then every interval until Stop.
// Each tick is followed by a snapshot when a persister is configured.
func (e *Engine) StartMaintenance(interval time.Duration) {
	e.maintain()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.maintain()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) maintain() {
	ctx := context.Background()
	r := e.Tick(ctx)
	if r.Promoted+r.Demoted+r.Deleted+r.Evicted > 0 {
		log.Printf("tick: promoted %d, demoted %d, deleted %d, evicted %d",
			r.Promoted, r.Demoted, r.Deleted, r.Evicted)
	}
	if err := e.Persist(ctx); err != nil {
		log.Printf("tick: %v", err)
	}
}

// Stop shuts down the maintenance goroutine and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
