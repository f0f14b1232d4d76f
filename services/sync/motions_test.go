package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/internal/popolo"
)

func motionSource() *fakeSource {
	return &fakeSource{
		currentTerm: "6",
		profiles: map[string]nrsr.MPProfile{
			"10": {ID: "10", URL: "http://www.nrsr.sk/mp/10", GivenName: "Ján", FamilyName: "Novák"},
			"11": {ID: "11", URL: "http://www.nrsr.sk/mp/11", GivenName: "Eva", FamilyName: "Kováčová"},
		},
		sessions: []nrsr.SessionRef{
			{Number: "2", Name: "2. schôdza"},
			{Number: "1", Name: "1. schôdza"},
		},
		sessionMotions: map[string][]nrsr.SessionMotion{
			"1": {{ID: "m1"}, {ID: "m2"}},
			"2": {{ID: "m3"}},
		},
		motions: map[string]nrsr.MotionDetail{
			"m1": motionDetail("m1", "13. 6. 2012 11:00:00"),
			"m2": motionDetail("m2", "13. 6. 2012 11:05:00"),
			"m3": motionDetail("m3", "26. 6. 2012 17:00:00"),
		},
	}
}

func motionDetail(id, date string) nrsr.MotionDetail {
	return nrsr.MotionDetail{
		URL:           nrsr.MotionURL(id),
		SessionNumber: "1",
		Term:          "6",
		Date:          date,
		Number:        "42",
		Name:          "Hlasovanie o návrhu zákona",
		Result:        "Návrh prešiel",
		Counts: map[string]string{
			"prítomní":  "2",
			"[z] za":    "1",
			"[p] proti": "0",
		},
		Votes: []nrsr.MPVote{
			{MPID: "10", Name: "Ján Novák", Vote: "z"},
			{MPID: "11", Name: "Eva Kováčová", Vote: "-"},
		},
	}
}

func TestSyncMotionsWritesAllSessionsOldestFirst(t *testing.T) {
	store := testStore()
	svc := testService(motionSource(), store, Options{})

	require.NoError(t, svc.SyncMotions(context.Background(), ""))

	require.Equal(t, 3, store.Count("motions"))
	require.Equal(t, 3, store.Count("vote-events"))
	// the dash vote is skipped per motion
	require.Equal(t, 3, store.Count("votes"))

	// insertion order must be chronological
	var motions []popolo.Motion
	require.NoError(t, store.Records("motions", &motions))
	require.Equal(t, "1. schôdza", motions[0].LegislativeSession.Name)
	require.Equal(t, "2. schôdza", motions[2].LegislativeSession.Name)
	require.Equal(t, "2012-06-13 11:00:00", motions[0].Date)
	require.Equal(t, "pass", motions[0].Result)
}

func TestSyncMotionsIdempotent(t *testing.T) {
	store := testStore()
	svc := testService(motionSource(), store, Options{})
	ctx := context.Background()

	require.NoError(t, svc.SyncMotions(ctx, ""))
	require.NoError(t, svc.SyncMotions(ctx, ""))

	require.Equal(t, 3, store.Count("motions"))
	require.Equal(t, 3, store.Count("vote-events"))
	require.Equal(t, 3, store.Count("votes"))
}

func TestSyncMotionsStopsAtScrapedSession(t *testing.T) {
	store := testStore()
	source := motionSource()
	svc := testService(source, store, Options{})
	ctx := context.Background()

	// session 1 was fully scraped by an earlier run
	mustCreate(store, "motions", popolo.Motion{
		Text:    "older",
		Sources: []popolo.Source{{URL: nrsr.MotionURL("m2")}},
	})

	require.NoError(t, svc.SyncMotions(ctx, ""))

	// only session 2 was processed, m1 was never revisited
	require.Equal(t, 2, store.Count("motions"))
	require.Equal(t, 1, store.Count("vote-events"))
}

func TestWriteMotionRollbackThenRerun(t *testing.T) {
	store := testStore()
	source := motionSource()
	source.sessions = source.sessions[:1]
	source.sessionMotions = map[string][]nrsr.SessionMotion{"2": {{ID: "m3"}}}
	svc := testService(source, store, Options{})
	ctx := context.Background()

	store.FailNextCreate["votes"] = errors.New("store hiccup")
	err := svc.SyncMotions(ctx, "")
	require.Error(t, err)

	// compensation left nothing behind
	require.Equal(t, 0, store.Count("motions"))
	require.Equal(t, 0, store.Count("vote-events"))
	require.Equal(t, 0, store.Count("votes"))

	// the rerun produces exactly one complete set
	require.NoError(t, svc.SyncMotions(ctx, ""))
	require.Equal(t, 1, store.Count("motions"))
	require.Equal(t, 1, store.Count("vote-events"))
	require.Equal(t, 1, store.Count("votes"))

	var votes []popolo.Vote
	require.NoError(t, store.Records("votes", &votes))
	require.Equal(t, "yes", votes[0].Option)
	require.NotEmpty(t, votes[0].VoterID)
}

func TestSyncMotionsUnknownVoteOptionFatal(t *testing.T) {
	store := testStore()
	source := motionSource()
	source.sessions = source.sessions[:1]
	source.sessionMotions = map[string][]nrsr.SessionMotion{"2": {{ID: "m3"}}}
	detail := source.motions["m3"]
	detail.Votes = []nrsr.MPVote{{MPID: "10", Vote: "x"}}
	source.motions["m3"] = detail
	svc := testService(source, store, Options{})

	err := svc.SyncMotions(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown vote option")

	require.Equal(t, 0, store.Count("motions"))
	require.Equal(t, 0, store.Count("vote-events"))
}

func TestSyncMotionsRespectsRunLimit(t *testing.T) {
	store := testStore()
	svc := testService(motionSource(), store, Options{MaxMotionsPerRun: 2})

	require.NoError(t, svc.SyncMotions(context.Background(), ""))
	require.Equal(t, 2, store.Count("motions"))
}

func TestBuildMotionSkipsBlankCounts(t *testing.T) {
	store := testStore()
	source := motionSource()
	source.sessions = source.sessions[:1]
	source.sessionMotions = map[string][]nrsr.SessionMotion{"2": {{ID: "m3"}}}
	detail := source.motions["m3"]
	// old pages leave some summary cells empty
	detail.Counts["[?] zdržalo sa"] = ""
	source.motions["m3"] = detail
	svc := testService(source, store, Options{})

	require.NoError(t, svc.SyncMotions(context.Background(), ""))

	var events []popolo.VoteEvent
	require.NoError(t, store.Records("vote-events", &events))
	require.Len(t, events, 1)
	for _, count := range events[0].Counts {
		require.NotEqual(t, "abstain", count.Option)
	}
}

func TestBuildMotionWithoutResult(t *testing.T) {
	store := testStore()
	source := motionSource()
	source.sessions = source.sessions[:1]
	source.sessionMotions = map[string][]nrsr.SessionMotion{"2": {{ID: "m3"}}}
	detail := source.motions["m3"]
	detail.Result = ""
	source.motions["m3"] = detail
	svc := testService(source, store, Options{})

	require.NoError(t, svc.SyncMotions(context.Background(), ""))

	var motions []popolo.Motion
	require.NoError(t, store.Records("motions", &motions))
	require.Empty(t, motions[0].Result)

	var events []popolo.VoteEvent
	require.NoError(t, store.Records("vote-events", &events))
	require.Empty(t, events[0].Result)
}

func TestVoteEventCounts(t *testing.T) {
	store := testStore()
	source := motionSource()
	svc := testService(source, store, Options{})

	require.NoError(t, svc.SyncMotions(context.Background(), ""))

	var events []popolo.VoteEvent
	require.NoError(t, store.Records("vote-events", &events))
	options := map[string]int{}
	for _, count := range events[0].Counts {
		options[count.Option] = count.Value
	}
	// attendance labels carry no vote option
	require.Equal(t, map[string]int{"yes": 1, "no": 0}, options)
	require.Equal(t, "42", events[0].Identifier)
}
