package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/vpapi"
)

func TestNormalizeParagraph(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Ďakujem\npekne.", "Ďakujem pekne."},
		{"/Potlesk./", "(Potlesk.)"},
		{"[Smiech v sále.]", "(Smiech v sále.)"},
		{"(Reakcia (zo sály) na vystúpenie.)", "(Reakcia [zo sály] na vystúpenie.)"},
		{"(a (b (c)))", "(a [b [c]])"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, normalizeParagraph(c.in), "input %q", c.in)
	}
}

func debateRun(t *testing.T) (*run, *segmenter) {
	t.Helper()
	store := testStore()
	r := testRun(store)
	r.chamberID = mustCreate(store, "organizations", popolo.Organization{
		Name:           chamberName,
		Classification: "chamber",
	})

	novakID := mustCreate(store, "people", popolo.Person{
		Name: "Ján Novák", GivenName: "Ján", FamilyName: "Novák",
	})
	r.personNames["Ján Novák"] = novakID
	r.personNames["J. Novák"] = novakID

	return r, &segmenter{run: r, sourceURL: "http://www.nrsr.sk/debate/1"}
}

func feed(t *testing.T, g *segmenter, paragraphs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range paragraphs {
		require.NoError(t, g.process(ctx, p))
	}
	require.NoError(t, g.finishPart(ctx))
}

func storedSpeeches(t *testing.T, r *run) []popolo.Speech {
	t.Helper()
	store := r.svc.store.(interface {
		Records(resource string, out any) error
	})
	var speeches []popolo.Speech
	require.NoError(t, store.Records("speeches", &speeches))
	return speeches
}

func TestSegmentationOrdering(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"J. Novák, minister dopravy: Hello.",
		"(Applause.)",
		"World.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 3)

	require.Equal(t, "speech", speeches[0].Type)
	require.Equal(t, 1, speeches[0].Position)
	require.Equal(t, "Hello.", speeches[0].Text)
	require.Equal(t, r.personNames["J. Novák"], speeches[0].CreatorID)
	require.Equal(t, "J. Novák, minister dopravy", speeches[0].Attribution)

	require.Equal(t, "scene", speeches[1].Type)
	require.Equal(t, 2, speeches[1].Position)
	require.Equal(t, "Applause.", speeches[1].Text)
	require.Empty(t, speeches[1].CreatorID)

	// trailing text after the scene starts a new speech of the still
	// current speaker
	require.Equal(t, "speech", speeches[2].Type)
	require.Equal(t, 3, speeches[2].Position)
	require.Equal(t, "World.", speeches[2].Text)
	require.Equal(t, speeches[0].CreatorID, speeches[2].CreatorID)
}

func TestMultiParagraphSceneFlushesOnce(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"(Start of scene",
		"still going",
		"end.)",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 1)
	require.Equal(t, "scene", speeches[0].Type)
	require.Equal(t, "Start of scene still going end.", speeches[0].Text)
}

func TestInlineSceneKeepsSpeaker(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"J. Novák, minister dopravy: Začnem stručne.",
		"Toto je dôležité. (Potlesk.) A pokračujem ďalej.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 3)
	require.Equal(t, "Začnem stručne.\n\nToto je dôležité.", speeches[0].Text)
	require.Equal(t, "scene", speeches[1].Type)
	require.Equal(t, "Potlesk.", speeches[1].Text)
	require.Equal(t, "A pokračujem ďalej.", speeches[2].Text)
	require.Equal(t, speeches[0].CreatorID, speeches[2].CreatorID)
	require.Equal(t, speeches[0].Attribution, speeches[2].Attribution)
}

func TestTranscriptHeaderStartsSitting(t *testing.T) {
	r, g := debateRun(t)

	feed(t, g,
		"___ 12. schôdza, 12. júna 2012 ___",
		"J. Novák, minister dopravy: Hello.",
	)

	var events []popolo.Event
	require.NoError(t, r.svc.store.GetAll(context.Background(), "events", vpapi.Query{}, &events))
	require.Len(t, events, 2)
	require.Equal(t, "session", events[0].Type)
	require.Equal(t, "12", events[0].Identifier)
	require.Equal(t, "sitting", events[1].Type)
	require.Equal(t, "2012-06-12", events[1].Identifier)
	require.Equal(t, events[0].ID, events[1].ParentID)
}

func TestHeaderWithoutSessionNumberIsSkipped(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"___ pokračovanie schôdze ___",
		"J. Novák, minister dopravy: Hello.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 1)
	require.Equal(t, "Hello.", speeches[0].Text)
}

func TestTimestampExtendsEndDates(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"10.04 hod.",
		"J. Novák, minister dopravy: Hello.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 1)
	require.Equal(t, "2012-06-12 10:04:00", speeches[0].Date)

	var events []popolo.Event
	require.NoError(t, r.svc.store.GetAll(ctx, "events", vpapi.Query{}, &events))
	for _, event := range events {
		require.Equal(t, "2012-06-12 10:04:00", event.EndDate, "event %s", event.Type)
	}
}

func TestSpeechKeepsTimeMarkInEffect(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	// the time mark arriving while the speech is still buffered only
	// dates what comes after the flush
	feed(t, g,
		"18.30 hod.",
		"J. Novák, minister dopravy: Neskôr.",
		"19.15 hod.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 1)
	require.Equal(t, "2012-06-12 18:30:00", speeches[0].Date)
}

func TestEndDateNeverShrinks(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g,
		"18.30 hod.",
		"J. Novák, minister dopravy: Neskôr.",
		"10.04 hod.",
		"J. Novák, minister dopravy: Skôr.",
	)

	var events []popolo.Event
	require.NoError(t, r.svc.store.GetAll(ctx, "events", vpapi.Query{}, &events))
	for _, event := range events {
		require.Equal(t, "2012-06-12 18:30:00", event.EndDate, "event %s", event.Type)
	}
}

func TestSittingRevisitWithinRunContinuesPositions(t *testing.T) {
	r, g := debateRun(t)

	// segments of one run may interleave sittings, returning to a
	// sitting continues its numbering
	feed(t, g,
		"___ 12. schôdza, 12. júna 2012 ___",
		"J. Novák, minister dopravy: Prvý deň.",
		"___ 12. schôdza, 13. júna 2012 ___",
		"J. Novák, minister dopravy: Druhý deň.",
		"___ 12. schôdza, 12. júna 2012 ___",
		"J. Novák, minister dopravy: Dokončenie.",
	)

	speeches := storedSpeeches(t, r)
	require.Len(t, speeches, 3)

	positions := map[string][]int{}
	for _, speech := range speeches {
		positions[speech.EventID] = append(positions[speech.EventID], speech.Position)
	}
	require.Len(t, positions, 2)
	for _, speech := range speeches {
		if speech.Text == "Prvý deň." || speech.Text == "Dokončenie." {
			require.Equal(t, speeches[0].EventID, speech.EventID)
		}
	}
	require.Equal(t, []int{1, 1, 2}, []int{speeches[0].Position, speeches[1].Position, speeches[2].Position})
}

func TestUnknownSpeakerIsSynthesized(t *testing.T) {
	r, g := debateRun(t)
	ctx := context.Background()

	require.NoError(t, g.enterSitting(ctx, "12", "2012-06-12"))
	feed(t, g, "Peter Horváth, štátny tajomník: Dobrý deň.")

	id, ok := r.personNames["Peter Horváth"]
	require.True(t, ok)

	var people []popolo.Person
	require.NoError(t, r.svc.store.GetAll(ctx, "people", vpapi.Query{
		Where: []vpapi.Condition{vpapi.Eq("name", "Peter Horváth")},
	}, &people))
	require.Len(t, people, 1)
	require.Equal(t, id, people[0].ID)
	require.Equal(t, "Horváth", people[0].FamilyName)

	speeches := storedSpeeches(t, r)
	require.Equal(t, id, speeches[0].CreatorID)
}

func TestNameCorrectionAppliesBeforeLookup(t *testing.T) {
	store := testStore()
	r := testRun(store)
	r.chamberID = mustCreate(store, "organizations", popolo.Organization{Name: chamberName, Classification: "chamber"})
	novakID := mustCreate(store, "people", popolo.Person{Name: "Ján Novák"})
	r.personNames["Ján Novák"] = novakID
	r.svc.opts.NameCorrections = map[string]string{"Jan Novak": "Ján Novák"}

	g := &segmenter{run: r, sourceURL: "http://www.nrsr.sk/debate/1"}
	require.NoError(t, g.enterSitting(context.Background(), "12", "2012-06-12"))
	feed(t, g, "Jan Novak, minister: Hello.")

	speeches := storedSpeeches(t, r)
	require.Equal(t, novakID, speeches[0].CreatorID)
}

func debateSyncSource() *fakeSource {
	return &fakeSource{
		currentTerm: "6",
		debates: []nrsr.DebatePartRef{
			{ID: "d1", Date: "2012-06-12", SessionNumber: "12"},
		},
		parts: map[string]nrsr.DebatePart{
			"d1": {
				ID:  "d1",
				URL: "http://www.nrsr.sk/debate/d1",
				Paragraphs: []string{
					"J. Novák, minister dopravy: Hello.",
					"(Applause.)",
					"World.",
				},
			},
		},
	}
}

func TestSyncDebatesRevisitReplacesSpeeches(t *testing.T) {
	store := testStore()
	source := debateSyncSource()
	svc := testService(source, store, Options{})
	ctx := context.Background()

	mustCreate(store, "people", popolo.Person{
		Name: "Ján Novák", GivenName: "Ján", FamilyName: "Novák",
	})

	require.NoError(t, svc.SyncDebates(ctx, ""))
	require.Equal(t, 3, store.Count("speeches"))
	require.Equal(t, 2, store.Count("events"))

	// the second run revisits the sitting, deletes its speeches and
	// repopulates them, converging on the same state
	require.NoError(t, svc.SyncDebates(ctx, ""))
	require.Equal(t, 3, store.Count("speeches"))
	require.Equal(t, 2, store.Count("events"))

	var speeches []popolo.Speech
	require.NoError(t, store.Records("speeches", &speeches))
	require.Equal(t, []int{1, 2, 3}, []int{speeches[0].Position, speeches[1].Position, speeches[2].Position})
}

func TestSyncDebatesSkipsSettlingParts(t *testing.T) {
	store := testStore()
	source := debateSyncSource()
	// published the day before the run, still being revised upstream
	source.debates = append(source.debates, nrsr.DebatePartRef{
		ID: "d2", Date: "2012-06-30", SessionNumber: "13",
	})
	svc := testService(source, store, Options{})

	require.NoError(t, svc.SyncDebates(context.Background(), ""))

	// only d1's sitting exists, d2 stayed out
	var events []popolo.Event
	require.NoError(t, store.GetAll(context.Background(), "events", vpapi.Query{
		Where: []vpapi.Condition{vpapi.Eq("type", "sitting")},
	}, &events))
	require.Len(t, events, 1)
	require.Equal(t, "2012-06-12", events[0].Identifier)
}
