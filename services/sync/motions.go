package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/skdate"
	"nrsr-backend/lib/vpapi"
)

// voteOptions maps the vote codes of the motion page. The dash marks
// an MP whose vote does not apply and is skipped, anything else missing
// here means the site changed and the run must stop.
var voteOptions = map[string]string{
	"z": "yes",
	"p": "no",
	"?": "abstain",
	"n": "not voting",
	"0": "absent",
}

// voteCountOptions maps the summary count labels of the motion page to
// vote options, attendance counts carry no option and are left out.
var voteCountOptions = map[string]string{
	"[z] za":         "yes",
	"[p] proti":      "no",
	"[?] zdržalo sa": "abstain",
	"[n] nehlasovalo": "not voting",
	"[0] neprítomní":  "absent",
}

const motionPassed = "Návrh prešiel"

// SyncMotions scrapes the not-yet-stored voted motions of a term with
// their vote events and individual votes. Empty term means the current
// one.
func (s *Service) SyncMotions(ctx context.Context, term string) error {
	ctx, span := tracer.Start(ctx, "SyncMotions")
	defer span.End()

	r, err := s.newRun(ctx, term)
	if err != nil {
		return fail(span, err)
	}
	slog.InfoContext(ctx, "syncing motions", "term", r.term)

	err = r.ensureChamber(ctx)
	if err != nil {
		return fail(span, err)
	}

	pending, err := r.unscrapedSessions(ctx)
	if err != nil {
		return fail(span, err)
	}

	written := 0
	for _, session := range pending {
		for _, motion := range session.motions {
			if written >= s.opts.MaxMotionsPerRun {
				slog.InfoContext(ctx, "motion limit for one run reached", "written", written)
				return nil
			}
			wrote, err := r.writeMotion(ctx, session.ref, motion)
			if err != nil {
				return fail(span, err)
			}
			if wrote {
				written++
			}
		}
	}

	slog.InfoContext(ctx, "motions synced", "term", r.term, "written", written)
	return nil
}

type sessionWork struct {
	ref     nrsr.SessionRef
	motions []nrsr.SessionMotion
}

// unscrapedSessions walks the term's sessions newest first and stops at
// the first one whose last motion the store already holds, everything
// before that point is already scraped. The remainder comes back oldest
// first so store insertion order matches chronological order.
func (r *run) unscrapedSessions(ctx context.Context) ([]sessionWork, error) {
	sessions, err := r.source().SessionList(ctx, r.term)
	if err != nil {
		return nil, err
	}

	var pending []sessionWork
	for _, session := range sessions {
		motions, err := r.source().Session(ctx, session.Number, r.term)
		if errors.Is(err, nrsr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(motions) == 0 {
			continue
		}

		exists, err := r.motionExists(ctx, motions[len(motions)-1].ID)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		pending = append(pending, sessionWork{ref: session, motions: motions})
	}

	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}
	return pending, nil
}

func (r *run) motionExists(ctx context.Context, motionID string) (bool, error) {
	return r.store().GetFirst(ctx, "motions", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("sources.url", nrsr.MotionURL(motionID)),
		},
	}, nil)
}

// writeMotion persists one motion with its vote event and votes, in
// that order. The canonical page url is the idempotence key: a motion
// already stored is skipped, and any mid-write failure deletes whatever
// was created (votes cascade with their vote event) so a re-run starts
// clean. Reports whether anything was written.
func (r *run) writeMotion(ctx context.Context, session nrsr.SessionRef, ref nrsr.SessionMotion) (bool, error) {
	exists, err := r.motionExists(ctx, ref.ID)
	if err != nil || exists {
		return false, err
	}

	detail, err := r.source().Motion(ctx, ref.ID)
	if err != nil {
		return false, fmt.Errorf("failed to scrape motion %s: %w", ref.ID, err)
	}
	motion, voteEvent, err := r.buildMotion(session, detail)
	if err != nil {
		return false, err
	}

	motionID, err := r.store().Create(ctx, "motions", motion)
	if err != nil {
		return false, err
	}
	err = r.writeVoteEvent(ctx, motionID, voteEvent, detail.Votes)
	if err != nil {
		delErr := r.store().Delete(ctx, "motions", motionID)
		if delErr != nil {
			return false, fmt.Errorf("motion compensation failed: %w (after %w)", delErr, err)
		}
		return false, err
	}
	return true, nil
}

func (r *run) writeVoteEvent(ctx context.Context, motionID string, voteEvent popolo.VoteEvent, votes []nrsr.MPVote) error {
	voteEvent.MotionID = motionID
	voteEventID, err := r.store().Create(ctx, "vote-events", voteEvent)
	if err != nil {
		return err
	}

	err = r.writeVotes(ctx, voteEventID, votes)
	if err != nil {
		delErr := r.store().Delete(ctx, "vote-events", voteEventID)
		if delErr != nil {
			return fmt.Errorf("vote event compensation failed: %w (after %w)", delErr, err)
		}
		return err
	}
	return nil
}

func (r *run) writeVotes(ctx context.Context, voteEventID string, votes []nrsr.MPVote) error {
	for _, vote := range votes {
		if vote.Vote == "-" {
			continue
		}
		option, ok := voteOptions[vote.Vote]
		if !ok {
			return fmt.Errorf("unknown vote option %q cast by MP %s", vote.Vote, vote.MPID)
		}
		voterID, err := r.resolvePerson(ctx, vote.MPID)
		if err != nil {
			return err
		}
		groupID, err := r.caucusID(ctx, vote.Caucus)
		if err != nil {
			return err
		}

		_, err = r.store().Create(ctx, "votes", popolo.Vote{
			VoteEventID: voteEventID,
			Option:      option,
			VoterID:     voterID,
			GroupID:     groupID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) buildMotion(session nrsr.SessionRef, detail nrsr.MotionDetail) (popolo.Motion, popolo.VoteEvent, error) {
	date, err := skdate.ToISO(detail.Date)
	if err != nil {
		return popolo.Motion{}, popolo.VoteEvent{}, fmt.Errorf("motion %s: %w", detail.URL, err)
	}

	// some older motions carry no result on the page, the field stays
	// unset rather than guessing a failure
	result := ""
	if detail.Result != "" {
		result = "fail"
		if detail.Result == motionPassed {
			result = "pass"
		}
	}
	legislativeSession := &popolo.LegislativeSession{Name: session.Name}

	motion := popolo.Motion{
		OrganizationID:     r.chamberID,
		LegislativeSession: legislativeSession,
		Text:               detail.Name,
		Date:               date,
		Result:             result,
		Sources:            []popolo.Source{{URL: detail.URL}},
	}
	voteEvent := popolo.VoteEvent{
		Identifier:         detail.Number,
		OrganizationID:     r.chamberID,
		LegislativeSession: legislativeSession,
		StartDate:          date,
		Result:             result,
		Sources:            []popolo.Source{{URL: detail.URL}},
	}
	for label, value := range detail.Counts {
		option, ok := voteCountOptions[label]
		if !ok || value == "" {
			continue
		}
		n, err := atoiStrict(value)
		if err != nil {
			return popolo.Motion{}, popolo.VoteEvent{}, fmt.Errorf("motion %s count %q: %w", detail.URL, label, err)
		}
		voteEvent.Counts = append(voteEvent.Counts, popolo.VoteCount{Option: option, Value: n})
	}
	return motion, voteEvent, nil
}

func atoiStrict(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// caucusID resolves a caucus by the name the motion page prints. MPs
// outside any caucus attribute to nothing, and a caucus renamed on the
// page before the people run saw it resolves to nothing as well.
func (r *run) caucusID(ctx context.Context, caucusName string) (string, error) {
	if caucusName == "" || strings.Contains(caucusName, "nie sú členmi") {
		return "", nil
	}
	if id, ok := r.caucusIDs[caucusName]; ok {
		return id, nil
	}

	var org popolo.Organization
	found, err := r.store().GetFirst(ctx, "organizations", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("classification", "caucus"),
			vpapi.Eq("name", caucusName),
		},
	}, &org)
	if err != nil {
		return "", err
	}
	id := ""
	if found {
		id = org.ID
	} else {
		slog.WarnContext(ctx, "caucus not found in store", "name", caucusName)
	}
	r.caucusIDs[caucusName] = id
	return id, nil
}
