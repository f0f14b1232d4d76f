// Package sync reconciles records scraped from the parliament website
// into the entity store: people and memberships, motions with their
// votes, and segmented debate transcripts. Every operation is safe to
// re-run, repeated runs converge on the same store state.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/lib/timezone"
	"nrsr-backend/lib/vpapi"
)

var tracer = otel.Tracer("services/sync")

// Source yields parsed records from the parliament website. It knows
// nothing about persistence.
type Source interface {
	CurrentTerm(ctx context.Context) (string, error)
	MPList(ctx context.Context, term string) ([]nrsr.MPRef, error)
	MP(ctx context.Context, id, term string) (nrsr.MPProfile, error)
	GroupList(ctx context.Context, groupType, term string) ([]nrsr.GroupRef, error)
	Group(ctx context.Context, groupType, id string) (nrsr.GroupProfile, error)
	ChangeList(ctx context.Context, term string) (nrsr.ChangeList, error)
	DeputySpeakers(ctx context.Context) ([]nrsr.DeputySpeaker, error)
	SessionList(ctx context.Context, term string) ([]nrsr.SessionRef, error)
	Session(ctx context.Context, sessionNumber, term string) ([]nrsr.SessionMotion, error)
	Motion(ctx context.Context, id string) (nrsr.MotionDetail, error)
	NewDebatesList(ctx context.Context, term, since string) ([]nrsr.DebatePartRef, error)
	DebatePartText(ctx context.Context, id string) (nrsr.DebatePart, error)
}

// Store is the entity store CRUD facade. Lookups report misses through
// the boolean, only genuine faults surface as errors.
type Store interface {
	GetFirst(ctx context.Context, resource string, q vpapi.Query, out any) (bool, error)
	GetAll(ctx context.Context, resource string, q vpapi.Query, out any) error
	Create(ctx context.Context, resource string, doc any) (string, error)
	Replace(ctx context.Context, resource, id string, doc any, effectiveDate string) error
	Patch(ctx context.Context, resource, id string, partial map[string]any) error
	Delete(ctx context.Context, resource, id string) error
}

type Options struct {
	// NameCorrections maps name strings as the transcripts misspell
	// them to the canonical form, applied before speaker lookup.
	NameCorrections map[string]string
	// MaxMotionsPerRun bounds one motion run, zero means the default
	// of 1000.
	MaxMotionsPerRun int
	// Now stands in for the wall clock, tests override it.
	Now func() time.Time
}

type Service struct {
	source Source
	store  Store
	opts   Options
}

func NewService(source Source, store Store, opts Options) *Service {
	if opts.MaxMotionsPerRun == 0 {
		opts.MaxMotionsPerRun = 1000
	}
	if opts.Now == nil {
		opts.Now = timezone.Now
	}
	return &Service{source: source, store: store, opts: opts}
}

// run carries the state of one scrape run: the term being scraped, the
// date time-bounding all updates, and lookup caches rebuilt at the
// start of every run.
type run struct {
	svc           *Service
	term          string
	effectiveDate string
	chamberID     string

	// natural key -> store id caches
	orgIDs    map[string]string
	personIDs map[string]string
	// person name -> store id, fed by the speaker resolution
	personNames map[string]string
	// caucus name as the motion pages print it -> store id
	caucusIDs map[string]string
	// sitting event ids already populated during this run
	sittingsSeen map[string]bool
	// sitting event id -> last speech position written this run
	sittingPositions map[string]int
}

// newRun resolves the requested term (empty means the current one) and
// derives the run's effective date: today for the current term, the
// term's end date for historical backfills.
func (s *Service) newRun(ctx context.Context, term string) (*run, error) {
	current, err := s.source.CurrentTerm(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine current term: %w", err)
	}
	if term == "" {
		term = current
	}
	t, ok := nrsr.Terms[term]
	if !ok {
		return nil, fmt.Errorf("unknown term %q", term)
	}

	effectiveDate := s.opts.Now().Format("2006-01-02")
	if term != current {
		effectiveDate = t.EndDate
	}

	return &run{
		svc:              s,
		term:             term,
		effectiveDate:    effectiveDate,
		orgIDs:           map[string]string{},
		personIDs:        map[string]string{},
		personNames:      map[string]string{},
		caucusIDs:        map[string]string{},
		sittingsSeen:     map[string]bool{},
		sittingPositions: map[string]int{},
	}, nil
}

func (r *run) store() Store   { return r.svc.store }
func (r *run) source() Source { return r.svc.source }

// fail records err on the span and hands it back, so operations can
// `return fail(span, err)` on every exit path.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
