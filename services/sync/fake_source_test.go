package sync

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/lib/telemetry"
	"nrsr-backend/lib/timezone"
	"nrsr-backend/lib/vpapi/vpapitest"
)

func TestMain(m *testing.M) {
	cleanup := telemetry.SetupForTesting("services/sync")
	code := m.Run()
	cleanup()
	os.Exit(code)
}

var testClock = time.Date(2012, 7, 1, 12, 0, 0, 0, timezone.Location)

// fakeSource serves canned records the way the website scraper would.
type fakeSource struct {
	currentTerm    string
	mps            []nrsr.MPRef
	profiles       map[string]nrsr.MPProfile
	groups         map[string][]nrsr.GroupRef
	groupPages     map[string]nrsr.GroupProfile
	changes        nrsr.ChangeList
	speakers       []nrsr.DeputySpeaker
	sessions       []nrsr.SessionRef
	sessionMotions map[string][]nrsr.SessionMotion
	motions        map[string]nrsr.MotionDetail
	debates        []nrsr.DebatePartRef
	parts          map[string]nrsr.DebatePart
}

func (f *fakeSource) CurrentTerm(ctx context.Context) (string, error) {
	return f.currentTerm, nil
}

func (f *fakeSource) MPList(ctx context.Context, term string) ([]nrsr.MPRef, error) {
	return f.mps, nil
}

func (f *fakeSource) MP(ctx context.Context, id, term string) (nrsr.MPProfile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return nrsr.MPProfile{}, fmt.Errorf("%w: MP %s", nrsr.ErrNotFound, id)
	}
	return profile, nil
}

func (f *fakeSource) GroupList(ctx context.Context, groupType, term string) ([]nrsr.GroupRef, error) {
	return f.groups[groupType], nil
}

func (f *fakeSource) Group(ctx context.Context, groupType, id string) (nrsr.GroupProfile, error) {
	profile, ok := f.groupPages[groupType+"/"+id]
	if !ok {
		return nrsr.GroupProfile{}, fmt.Errorf("%w: %s %s", nrsr.ErrNotFound, groupType, id)
	}
	return profile, nil
}

func (f *fakeSource) ChangeList(ctx context.Context, term string) (nrsr.ChangeList, error) {
	return f.changes, nil
}

func (f *fakeSource) DeputySpeakers(ctx context.Context) ([]nrsr.DeputySpeaker, error) {
	return f.speakers, nil
}

func (f *fakeSource) SessionList(ctx context.Context, term string) ([]nrsr.SessionRef, error) {
	return f.sessions, nil
}

func (f *fakeSource) Session(ctx context.Context, sessionNumber, term string) ([]nrsr.SessionMotion, error) {
	motions, ok := f.sessionMotions[sessionNumber]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", nrsr.ErrNotFound, sessionNumber)
	}
	return motions, nil
}

func (f *fakeSource) Motion(ctx context.Context, id string) (nrsr.MotionDetail, error) {
	detail, ok := f.motions[id]
	if !ok {
		return nrsr.MotionDetail{}, fmt.Errorf("%w: motion %s", nrsr.ErrNotFound, id)
	}
	return detail, nil
}

func (f *fakeSource) NewDebatesList(ctx context.Context, term, since string) ([]nrsr.DebatePartRef, error) {
	var parts []nrsr.DebatePartRef
	for _, part := range f.debates {
		if since == "" || part.Date >= since {
			parts = append(parts, part)
		}
	}
	return parts, nil
}

func (f *fakeSource) DebatePartText(ctx context.Context, id string) (nrsr.DebatePart, error) {
	part, ok := f.parts[id]
	if !ok {
		return nrsr.DebatePart{}, fmt.Errorf("%w: debate part %s", nrsr.ErrNotFound, id)
	}
	return part, nil
}

func testStore() *vpapitest.Store {
	store := vpapitest.New()
	store.Now = func() time.Time { return testClock }
	return store
}

func testService(source Source, store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testClock }
	}
	return NewService(source, store, opts)
}

// testRun builds a run without going through a source round trip, for
// tests exercising run internals directly.
func testRun(store Store) *run {
	svc := testService(nil, store, Options{})
	return &run{
		svc:              svc,
		term:             "6",
		effectiveDate:    "2012-07-01",
		orgIDs:           map[string]string{},
		personIDs:        map[string]string{},
		personNames:      map[string]string{},
		caucusIDs:        map[string]string{},
		sittingsSeen:     map[string]bool{},
		sittingPositions: map[string]int{},
	}
}

func mustCreate(store Store, resource string, doc any) string {
	id, err := store.Create(context.Background(), resource, doc)
	if err != nil {
		panic(err)
	}
	return id
}
