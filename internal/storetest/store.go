// Package storetest provides an in-memory ports.Store for service tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// Store is an in-memory ports.Store. ExecTx runs the callback against
// the same store under one lock; it does not emulate rollback, so tests
// asserting atomicity should check behavior, not partial state.
type Store struct {
	mu          sync.Mutex
	experiments map[string]*domain.Experiment
	mappings    map[string]*domain.Mapping
	imports     map[string]*domain.ImportBatch
	snapshots   []*domain.GuardrailSnapshot
	events      []*domain.Event
	audits      map[string]*domain.AuditRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		experiments: make(map[string]*domain.Experiment),
		mappings:    make(map[string]*domain.Mapping),
		imports:     make(map[string]*domain.ImportBatch),
		audits:      make(map[string]*domain.AuditRecord),
	}
}

func (s *Store) Experiments() ports.ExperimentRepository { return (*experimentRepo)(s) }
func (s *Store) Mappings() ports.MappingRepository       { return (*mappingRepo)(s) }
func (s *Store) Imports() ports.ImportRepository         { return (*importRepo)(s) }
func (s *Store) Snapshots() ports.SnapshotRepository     { return (*snapshotRepo)(s) }
func (s *Store) Events() ports.EventRepository           { return (*eventRepo)(s) }
func (s *Store) Audit() ports.AuditRepository            { return (*auditRepo)(s) }

func (s *Store) ExecTx(ctx context.Context, fn func(tx ports.Store) error) error {
	return fn(s)
}

// AddSnapshot seeds one snapshot row.
func (s *Store) AddSnapshot(snap *domain.GuardrailSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

// EventsOfType returns the recorded events of one type, oldest first.
func (s *Store) EventsOfType(t domain.EventType) []*domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// AuditCount returns the number of audit records written.
func (s *Store) AuditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

type experimentRepo Store

func (r *experimentRepo) Create(_ context.Context, exp *domain.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exp
	r.experiments[exp.ID] = &cp
	return nil
}

func (r *experimentRepo) GetByID(_ context.Context, publisherID, id string) (*domain.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.experiments[id]
	if !ok || exp.PublisherID != publisherID {
		return nil, nil
	}
	cp := *exp
	return &cp, nil
}

func (r *experimentRepo) GetActiveByPublisher(_ context.Context, publisherID string) (*domain.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exp := range r.experiments {
		if exp.PublisherID == publisherID && exp.Status == domain.StatusActive {
			cp := *exp
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *experimentRepo) List(_ context.Context, publisherID string) ([]*domain.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Experiment
	for _, exp := range r.experiments {
		if exp.PublisherID == publisherID {
			cp := *exp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *experimentRepo) Update(_ context.Context, exp *domain.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[exp.ID]; !ok {
		return domain.NotFoundf("experiment %s", exp.ID)
	}
	cp := *exp
	r.experiments[exp.ID] = &cp
	return nil
}

func (r *experimentRepo) UpdateStatusIf(_ context.Context, id string, from, to domain.ExperimentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.experiments[id]
	if !ok || exp.Status != from {
		return false, nil
	}
	exp.Status = to
	exp.UpdatedAt = time.Now().UTC()
	return true, nil
}

type mappingRepo Store

func (r *mappingRepo) Create(_ context.Context, m *domain.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.mappings[m.ID] = &cp
	return nil
}

func (r *mappingRepo) GetByID(_ context.Context, experimentID, id string) (*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[id]
	if !ok || m.ExperimentID != experimentID {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *mappingRepo) GetByIncumbent(_ context.Context, experimentID, network, instanceID string) (*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ExperimentID == experimentID && m.IncumbentNetwork == network && m.IncumbentInstanceID == instanceID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *mappingRepo) ListByExperiment(_ context.Context, experimentID string) ([]*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Mapping
	for _, m := range r.mappings {
		if m.ExperimentID == experimentID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WaterfallPosition != out[j].WaterfallPosition {
			return out[i].WaterfallPosition < out[j].WaterfallPosition
		}
		return out[i].IncumbentInstanceID < out[j].IncumbentInstanceID
	})
	return out, nil
}

func (r *mappingRepo) Update(_ context.Context, m *domain.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[m.ID]; !ok {
		return domain.NotFoundf("mapping %s", m.ID)
	}
	cp := *m
	r.mappings[m.ID] = &cp
	return nil
}

type importRepo Store

func (r *importRepo) Create(_ context.Context, b *domain.ImportBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.imports[b.ID] = &cp
	return nil
}

func (r *importRepo) GetLatestByExperiment(_ context.Context, experimentID string) (*domain.ImportBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.ImportBatch
	for _, b := range r.imports {
		if b.ExperimentID != experimentID {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *importRepo) MarkCompleted(_ context.Context, id string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.imports[id]
	if !ok {
		return domain.NotFoundf("import batch %s", id)
	}
	b.Status = domain.ImportCompleted
	b.CompletedAt = &completedAt
	return nil
}

type snapshotRepo Store

func (r *snapshotRepo) ListSince(_ context.Context, experimentID string, since time.Time) ([]*domain.GuardrailSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.GuardrailSnapshot
	for _, s := range r.snapshots {
		if s.ExperimentID == experimentID && !s.CapturedAt.Before(since) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type eventRepo Store

func (r *eventRepo) Append(_ context.Context, ev *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

func (r *eventRepo) ListByExperiment(_ context.Context, experimentID string, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].ExperimentID != experimentID {
			continue
		}
		cp := *r.events[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type auditRepo Store

func (r *auditRepo) Append(_ context.Context, rec *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.audits[rec.ID] = &cp
	return nil
}

func (r *auditRepo) GetByID(_ context.Context, id string) (*domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.audits[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *auditRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.audits {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.audits, id)
			n++
		}
	}
	return n, nil
}
