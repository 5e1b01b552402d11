package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
	"github.com/lazypower/tiermem/internal/vecmath"
)

// Vectorizer turns opaque content into a fixed-length vector.
type Vectorizer func(ctx context.Context, content any) ([]float64, error)

// Persister receives snapshots and the eviction log. Calls happen outside
// the engine lock.
type Persister interface {
	SaveSnapshot(ctx context.Context, traces []memory.Trace) error
	RecordEvictions(ctx context.Context, recs []eviction.Record) error
}

// Engine owns the trace store and serialises every mutation of it:
// ingestion, maintenance ticks, eviction and retrieval strengthening.
type Engine struct {
	mu       sync.Mutex
	cfg      config.MemoryConfig
	store    *memory.Store
	evict    *eviction.Engine
	pressure eviction.Pressure

	bus       events.Publisher
	vectorize Vectorizer
	persist   Persister
	now       func() time.Time
	newID     func() string

	evictions map[eviction.Reason]int
	ticks     int
	lastTick  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBus sets where lifecycle events go.
func WithBus(p events.Publisher) Option {
	return func(e *Engine) { e.bus = p }
}

// WithVectorizer sets the embedding boundary used for content and text
// queries that arrive without a vector.
func WithVectorizer(v Vectorizer) Option {
	return func(e *Engine) { e.vectorize = v }
}

// WithPersister sets the snapshot and eviction log sink.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persist = p }
}

// WithIDs replaces the uuid generator.
func WithIDs(next func() string) Option {
	return func(e *Engine) { e.newID = next }
}

// New creates an Engine.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	ev, err := eviction.New(cfg.Eviction)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg.Memory,
		store:     memory.NewStore(),
		evict:     ev,
		bus:       events.Discard{},
		now:       time.Now,
		newID:     uuid.NewString,
		evictions: make(map[eviction.Reason]int),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// StoreRequest is one ingestion. Vector wins over Text, Text over Content,
// when deciding what to embed.
type StoreRequest struct {
	Content any       `json:"content"`
	Text    string    `json:"text,omitempty"`
	Vector  []float64 `json:"vector,omitempty"`
	Tags    []string  `json:"tags,omitempty"`
	Valence float64   `json:"valence"`
	Related []string  `json:"related,omitempty"`
}

// Store ingests a new trace into the working tier and returns its id. An
// invalid vector is rejected before anything changes.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (string, error) {
	vec := req.Vector
	if vec == nil {
		var input any = req.Content
		if req.Text != "" {
			input = req.Text
		}
		var err error
		if vec, err = e.resolve(ctx, input); err != nil {
			return "", err
		}
	}
	if err := vecmath.Validate(vec, e.cfg.Dimensions); err != nil {
		return "", fmt.Errorf("%w: %v", memory.ErrInvalidVector, err)
	}

	e.mu.Lock()
	now := e.now()
	t := &memory.Trace{
		ID:               e.newID(),
		Content:          req.Content,
		Vector:           append([]float64(nil), vec...),
		Frequency:        1,
		EmotionalValence: memory.ClampValence(req.Valence),
		Tags:             memory.NormalizeTags(req.Tags),
		Tier:             memory.Working,
		DecayRate:        e.cfg.DecayRate * e.cfg.DecayMultiplier.For(memory.Working),
		CreatedAt:        now,
		LastAccessed:     now,
		TierEnteredAt:    now,
		DecayedAt:        now,
	}
	t.SetStrength(e.cfg.InitialStrength)
	e.store.Put(t)
	e.associate(t, req.Related)
	e.publish(events.TraceStored, t, now, "")

	var r TickReport
	e.enforceAll(now, &r)
	pending := r.records
	e.mu.Unlock()

	e.flush(ctx, pending)
	return t.ID, nil
}

func (e *Engine) resolve(ctx context.Context, input any) ([]float64, error) {
	if e.vectorize == nil {
		return nil, fmt.Errorf("%w: no vector supplied and no vectorizer configured", memory.ErrInvalidVector)
	}
	vec, err := e.vectorize(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	return vec, nil
}

// Get returns a copy of the trace without touching it.
func (e *Engine) Get(id string) (memory.Trace, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.store.Get(id)
	if !ok {
		return memory.Trace{}, false
	}
	return t.Clone(), true
}

// Remove deletes a trace and its associations.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Remove(id) {
		return fmt.Errorf("remove %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// SetPressure sets the external pressure signal used by later eviction
// passes. PressureNone restores overflow-only eviction.
func (e *Engine) SetPressure(p eviction.Pressure) {
	e.mu.Lock()
	e.pressure = p
	e.mu.Unlock()
}

// Snapshot returns copies of every trace ordered by creation time.
func (e *Engine) Snapshot() []memory.Trace {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() []memory.Trace {
	all := e.store.All()
	out := make([]memory.Trace, len(all))
	for i, t := range all {
		out[i] = t.Clone()
	}
	return out
}

// Restore replaces the store contents with traces, for example a snapshot
// loaded at startup. Every vector is checked before anything is replaced.
func (e *Engine) Restore(traces []memory.Trace) error {
	for _, t := range traces {
		if err := vecmath.Validate(t.Vector, e.cfg.Dimensions); err != nil {
			return fmt.Errorf("restore %s: %w: %v", t.ID, memory.ErrInvalidVector, err)
		}
		if t.Tier < memory.Working || t.Tier > memory.Permanent {
			return fmt.Errorf("restore %s: unknown tier %d", t.ID, int(t.Tier))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = memory.NewStore()
	for i := range traces {
		c := traces[i].Clone()
		c.Associations = nil
		c.Strength = memory.ClampStrength(c.Strength)
		if c.Frequency < 1 {
			c.Frequency = 1
		}
		e.store.Put(&c)
	}
	for _, t := range traces {
		for other, w := range t.Associations {
			e.store.Link(t.ID, other, w)
		}
	}
	return nil
}

// Persist writes a snapshot through the configured persister.
func (e *Engine) Persist(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	snap := e.Snapshot()
	if err := e.persist.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (e *Engine) flush(ctx context.Context, recs []eviction.Record) {
	if e.persist == nil || len(recs) == 0 {
		return
	}
	if err := e.persist.RecordEvictions(ctx, recs); err != nil {
		log.Printf("evict: record %d evictions: %v", len(recs), err)
	}
}

func (e *Engine) publish(typ events.Type, t *memory.Trace, at time.Time, reason string) {
	e.bus.Publish(events.Event{
		Type:     typ,
		TraceID:  t.ID,
		At:       at,
		From:     t.Tier.String(),
		Reason:   reason,
		Strength: t.Strength,
	})
}

func (e *Engine) publishMove(typ events.Type, t *memory.Trace, from memory.Tier, at time.Time) {
	e.bus.Publish(events.Event{
		Type:     typ,
		TraceID:  t.ID,
		At:       at,
		From:     from.String(),
		To:       t.Tier.String(),
		Strength: t.Strength,
	})
}

// CheckInvariants verifies the store's structural invariants.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.CheckInvariants()
}
