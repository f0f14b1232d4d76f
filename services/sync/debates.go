package sync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/vpapi"
)

// debateSettleWindow keeps freshly published transcript segments out of
// a run, the site keeps revising them for a few days.
const debateSettleWindow = 5

// SyncDebates scrapes new debate transcript segments of a term and
// segments them into speech and scene records anchored to session and
// sitting events. Empty term means the current one.
func (s *Service) SyncDebates(ctx context.Context, term string) error {
	ctx, span := tracer.Start(ctx, "SyncDebates")
	defer span.End()

	r, err := s.newRun(ctx, term)
	if err != nil {
		return fail(span, err)
	}
	slog.InfoContext(ctx, "syncing debates", "term", r.term)

	err = r.ensureChamber(ctx)
	if err != nil {
		return fail(span, err)
	}
	err = r.loadPersonNames(ctx)
	if err != nil {
		return fail(span, err)
	}

	since, err := r.latestSittingDate(ctx)
	if err != nil {
		return fail(span, err)
	}
	parts, err := s.source.NewDebatesList(ctx, r.term, since)
	if err != nil {
		return fail(span, err)
	}

	cutoff := s.opts.Now().AddDate(0, 0, -debateSettleWindow).Format("2006-01-02")
	seg := &segmenter{run: r}
	processed := 0
	for _, part := range parts {
		if part.Date > cutoff {
			continue
		}
		text, err := s.source.DebatePartText(ctx, part.ID)
		if err != nil {
			return fail(span, fmt.Errorf("failed to scrape debate part %s: %w", part.ID, err))
		}

		seg.sourceURL = text.URL
		err = seg.enterSitting(ctx, part.SessionNumber, part.Date)
		if err != nil {
			return fail(span, err)
		}
		for _, paragraph := range text.Paragraphs {
			err = seg.process(ctx, paragraph)
			if err != nil {
				return fail(span, err)
			}
		}
		err = seg.finishPart(ctx)
		if err != nil {
			return fail(span, err)
		}
		processed++
	}

	slog.InfoContext(ctx, "debates synced", "term", r.term, "parts", processed)
	return nil
}

// loadPersonNames preloads the name lookup used for speaker
// resolution, both full and initial-abbreviated forms.
func (r *run) loadPersonNames(ctx context.Context) error {
	var people []popolo.Person
	err := r.store().GetAll(ctx, "people", vpapi.Query{}, &people)
	if err != nil {
		return err
	}
	for _, p := range people {
		r.personNames[p.Name] = p.ID
		if p.GivenName != "" && p.FamilyName != "" {
			abbreviated := string([]rune(p.GivenName)[0]) + ". " + p.FamilyName
			r.personNames[abbreviated] = p.ID
		}
	}
	return nil
}

// latestSittingDate finds where the previous debate run left off.
func (r *run) latestSittingDate(ctx context.Context) (string, error) {
	var sitting popolo.Event
	found, err := r.store().GetFirst(ctx, "events", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("type", "sitting"),
			vpapi.Eq("organization_id", r.chamberID),
		},
		Sort: []vpapi.SortKey{{Field: "start_date", Desc: true}},
	}, &sitting)
	if err != nil || !found {
		return "", err
	}
	return sitting.StartDate, nil
}

var (
	headerRe    = regexp.MustCompile(`(\d+)\.\s*schôdz`)
	headerDayRe = regexp.MustCompile(`(\d{1,2})\.\s*(januára|februára|marca|apríla|mája|júna|júla|augusta|septembra|októbra|novembra|decembra)\s*(\d{4})`)
	speakerRe   = regexp.MustCompile(`^([\p{Lu}][\p{L}.]*(?:[ -][\p{Lu}][\p{L}.]*){0,3}),\s+([^:]{1,60}):\s*(.*)$`)
	timeRe      = regexp.MustCompile(`^(\d{1,2})[.:](\d{2})\s*(?:hod\.?|h\.?)?$`)
	// an aside inside running text, only split off after a finished
	// sentence so enumerations like "a (b) c" stay intact
	inlineSceneRe = regexp.MustCompile(`^(.*?[.!?…])\s*\(([^()]+)\)\s*(.*)$`)
	slashAsideRe  = regexp.MustCompile(`/([^/]+)/`)
)

var slovakMonths = map[string]string{
	"januára": "01", "februára": "02", "marca": "03", "apríla": "04",
	"mája": "05", "júna": "06", "júla": "07", "augusta": "08",
	"septembra": "09", "októbra": "10", "novembra": "11", "decembra": "12",
}

// segmenter is the paragraph automaton turning a transcript stream
// into discrete speech and scene records. One instance lives for a
// whole run so the position counter survives segment boundaries within
// one sitting.
type segmenter struct {
	run       *run
	sourceURL string

	sessionID      string
	sittingID      string
	sessionEndDate string
	sittingEndDate string

	// date of the current sitting and the last time mark seen, new
	// records get the mark in effect when their buffer started
	date      string
	timestamp string

	speakerID   string
	attribution string

	speech      []string
	speechDate  string
	scene       []string
	sceneDate   string
	sceneDepth  int
	withinScene bool
}

// process dispatches one paragraph, first matching transition wins.
func (g *segmenter) process(ctx context.Context, paragraph string) error {
	paragraph = normalizeParagraph(paragraph)
	if paragraph == "" {
		return nil
	}

	if isHeader(paragraph) {
		return g.handleHeader(ctx, paragraph)
	}
	if g.withinScene {
		return g.continueScene(ctx, paragraph)
	}
	if strings.HasPrefix(paragraph, "(") {
		return g.startScene(ctx, paragraph)
	}
	if m := speakerRe.FindStringSubmatch(paragraph); m != nil {
		return g.newSpeaker(ctx, m[1], m[2], m[3])
	}
	if m := timeRe.FindStringSubmatch(paragraph); m != nil {
		g.timestamp = g.date + " " + zeroPad(m[1]) + ":" + m[2] + ":00"
		return nil
	}
	if m := inlineSceneRe.FindStringSubmatch(paragraph); m != nil {
		return g.inlineScene(ctx, m[1], m[2], m[3])
	}

	g.appendSpeech(paragraph)
	return nil
}

// appendSpeech buffers a speech paragraph. The buffer keeps the time
// mark in effect when its first paragraph arrived: a time mark seen
// while text is still accumulating only dates what comes after the
// flush.
func (g *segmenter) appendSpeech(paragraph string) {
	if len(g.speech) == 0 {
		g.speechDate = g.timestamp
	}
	g.speech = append(g.speech, paragraph)
}

// normalizeParagraph prepares a paragraph for dispatch: newlines
// collapse to spaces, slash and bracket asides become parenthesized,
// and nested parentheses are rewritten to brackets so balance counting
// at the outer level stays unambiguous.
func normalizeParagraph(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = slashAsideRe.ReplaceAllString(s, "($1)")
	s = strings.ReplaceAll(s, "[", "(")
	s = strings.ReplaceAll(s, "]", ")")

	var b strings.Builder
	depth := 0
	for _, c := range s {
		switch c {
		case '(':
			if depth > 0 {
				b.WriteRune('[')
			} else {
				b.WriteRune('(')
			}
			depth++
		case ')':
			depth--
			if depth > 0 {
				b.WriteRune(']')
			} else {
				b.WriteRune(')')
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func isHeader(paragraph string) bool {
	return strings.Contains(paragraph, "___") && strings.Contains(paragraph, "schôdz")
}

func parenBalance(s string) int {
	return strings.Count(s, "(") - strings.Count(s, ")")
}

// handleHeader starts a new sitting from an in-transcript boundary
// line. A header without a recognizable session number is tolerated
// and skipped, old transcripts are not uniformly formatted.
func (g *segmenter) handleHeader(ctx context.Context, paragraph string) error {
	m := headerRe.FindStringSubmatch(paragraph)
	if m == nil {
		slog.WarnContext(ctx, "cannot resolve session number in transcript header", "header", paragraph)
		return nil
	}
	sessionNumber := m[1]

	date := g.date
	if d := headerDayRe.FindStringSubmatch(paragraph); d != nil {
		date = d[3] + "-" + slovakMonths[d[2]] + "-" + zeroPad(d[1])
	}
	return g.enterSitting(ctx, sessionNumber, date)
}

// enterSitting points the automaton at the sitting of the given
// session and day, resolving or creating the session and sitting
// events. Re-entering the sitting the run is already in changes
// nothing; entering a sitting stored by an earlier run deletes its
// speeches first so the re-scrape does not append duplicates.
func (g *segmenter) enterSitting(ctx context.Context, sessionNumber, date string) error {
	err := g.flushAll(ctx)
	if err != nil {
		return err
	}

	r := g.run
	sessionID, sessionEnd, _, err := g.resolveEvent(ctx, popolo.Event{
		Name:           sessionNumber + ". schôdza",
		Identifier:     sessionNumber,
		Type:           "session",
		OrganizationID: r.chamberID,
		StartDate:      date,
		EndDate:        date,
	})
	if err != nil {
		return err
	}
	sittingID, sittingEnd, existed, err := g.resolveEvent(ctx, popolo.Event{
		Name:           "Rokovací deň " + date,
		Identifier:     date,
		Type:           "sitting",
		OrganizationID: r.chamberID,
		ParentID:       sessionID,
		StartDate:      date,
		EndDate:        date,
	})
	if err != nil {
		return err
	}

	if sittingID == g.sittingID {
		g.date = date
		return nil
	}

	if existed && !r.sittingsSeen[sittingID] {
		err = g.deleteSpeeches(ctx, sittingID)
		if err != nil {
			return err
		}
	}
	r.sittingsSeen[sittingID] = true

	g.sessionID = sessionID
	g.sessionEndDate = sessionEnd
	g.sittingID = sittingID
	g.sittingEndDate = sittingEnd
	g.date = date
	g.timestamp = date
	g.speakerID = ""
	g.attribution = ""
	return nil
}

// resolveEvent finds an event by its natural key (organization, type,
// identifier, parent) or creates it. Returns the id, the stored end
// date and whether the event already existed.
func (g *segmenter) resolveEvent(ctx context.Context, event popolo.Event) (string, string, bool, error) {
	where := []vpapi.Condition{
		vpapi.Eq("type", event.Type),
		vpapi.Eq("organization_id", event.OrganizationID),
		vpapi.Eq("identifier", event.Identifier),
	}
	if event.ParentID != "" {
		where = append(where, vpapi.Eq("parent_id", event.ParentID))
	}

	var existing popolo.Event
	found, err := g.run.store().GetFirst(ctx, "events", vpapi.Query{Where: where}, &existing)
	if err != nil {
		return "", "", false, err
	}
	if found {
		return existing.ID, existing.EndDate, true, nil
	}

	id, err := g.run.store().Create(ctx, "events", event)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to create %s %q: %w", event.Type, event.Identifier, err)
	}
	return id, event.EndDate, false, nil
}

func (g *segmenter) deleteSpeeches(ctx context.Context, sittingID string) error {
	var speeches []popolo.Speech
	err := g.run.store().GetAll(ctx, "speeches", vpapi.Query{
		Where: []vpapi.Condition{vpapi.Eq("event_id", sittingID)},
	}, &speeches)
	if err != nil {
		return err
	}
	if len(speeches) > 0 {
		slog.InfoContext(ctx, "deleting speeches of revisited sitting",
			"sitting_id", sittingID, "count", len(speeches))
	}
	for _, speech := range speeches {
		err = g.run.store().Delete(ctx, "speeches", speech.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *segmenter) startScene(ctx context.Context, paragraph string) error {
	err := g.flushSpeech(ctx)
	if err != nil {
		return err
	}
	g.withinScene = true
	g.sceneDate = g.timestamp
	g.scene = append(g.scene, paragraph)
	g.sceneDepth = parenBalance(paragraph)
	if g.sceneDepth <= 0 {
		return g.flushScene(ctx)
	}
	return nil
}

func (g *segmenter) continueScene(ctx context.Context, paragraph string) error {
	g.scene = append(g.scene, paragraph)
	g.sceneDepth += parenBalance(paragraph)
	if g.sceneDepth <= 0 {
		return g.flushScene(ctx)
	}
	return nil
}

// newSpeaker attributes subsequent text to a new speaker, creating a
// person record for a name never seen before (guests and officials
// speak in the chamber without being MPs).
func (g *segmenter) newSpeaker(ctx context.Context, name, role, rest string) error {
	err := g.flushSpeech(ctx)
	if err != nil {
		return err
	}

	r := g.run
	if corrected, ok := r.svc.opts.NameCorrections[name]; ok {
		name = corrected
	}

	id, ok := r.personNames[name]
	if !ok {
		id, err = g.synthesizePerson(ctx, name)
		if err != nil {
			return err
		}
	}
	g.speakerID = id
	g.attribution = name + ", " + strings.TrimSpace(role)
	if rest != "" {
		g.appendSpeech(rest)
	}
	return nil
}

// synthesizePerson creates a minimal person record for an unknown
// speaker name and registers it in the lookup, logging the closest
// known name so misspellings can be promoted into the correction
// table.
func (g *segmenter) synthesizePerson(ctx context.Context, name string) (string, error) {
	r := g.run

	closest, similarity := "", 0.0
	for known := range r.personNames {
		if sim := matchr.JaroWinkler(name, known, false); sim > similarity {
			closest, similarity = known, sim
		}
	}
	slog.WarnContext(ctx, "unknown speaker, creating person",
		"name", name, "closest_known", closest)

	person := popolo.Person{
		Name:    name,
		Sources: []popolo.Source{{URL: g.sourceURL}},
	}
	if i := strings.LastIndex(name, " "); i > 0 {
		person.GivenName = name[:i]
		person.FamilyName = name[i+1:]
	}
	id, err := r.store().Create(ctx, "people", person)
	if err != nil {
		return "", fmt.Errorf("failed to create person %q: %w", name, err)
	}
	r.personNames[name] = id
	return id, nil
}

// inlineScene splits an aside out of running speech text: the text
// before it flushes as a speech, the aside becomes a scene, and the
// remainder keeps accumulating under the same speaker.
func (g *segmenter) inlineScene(ctx context.Context, before, aside, after string) error {
	g.appendSpeech(before)
	err := g.flushSpeech(ctx)
	if err != nil {
		return err
	}
	err = g.emit(ctx, "scene", "", "", aside, g.timestamp)
	if err != nil {
		return err
	}
	if after != "" {
		g.appendSpeech(after)
	}
	return nil
}

func (g *segmenter) flushSpeech(ctx context.Context) error {
	if len(g.speech) == 0 {
		return nil
	}
	text := strings.Join(g.speech, "\n\n")
	g.speech = nil
	return g.emit(ctx, "speech", g.speakerID, g.attribution, text, g.speechDate)
}

func (g *segmenter) flushScene(ctx context.Context) error {
	g.withinScene = false
	if len(g.scene) == 0 {
		return nil
	}
	text := strings.Join(g.scene, " ")
	text = strings.TrimPrefix(text, "(")
	text = strings.TrimSuffix(text, ")")
	g.scene = nil
	g.sceneDepth = 0
	return g.emit(ctx, "scene", "", "", text, g.sceneDate)
}

func (g *segmenter) flushAll(ctx context.Context) error {
	err := g.flushSpeech(ctx)
	if err != nil {
		return err
	}
	if g.withinScene {
		return g.flushScene(ctx)
	}
	return nil
}

// finishPart flushes whatever one transcript segment left buffered.
func (g *segmenter) finishPart(ctx context.Context) error {
	return g.flushAll(ctx)
}

// emit appends a record to the current sitting and extends the sitting
// and session end dates to the record's date, end bounds only ever
// grow. Positions are tracked per sitting so a sitting revisited later
// in the same run continues its numbering instead of restarting it.
func (g *segmenter) emit(ctx context.Context, speechType, creatorID, attribution, text, date string) error {
	if g.sittingID == "" {
		slog.WarnContext(ctx, "transcript text before any sitting header, skipping", "text", text)
		return nil
	}

	r := g.run
	r.sittingPositions[g.sittingID]++
	_, err := r.store().Create(ctx, "speeches", popolo.Speech{
		EventID:     g.sittingID,
		CreatorID:   creatorID,
		Attribution: attribution,
		Type:        speechType,
		Position:    r.sittingPositions[g.sittingID],
		Text:        text,
		Date:        date,
		Sources:     []popolo.Source{{URL: g.sourceURL}},
	})
	if err != nil {
		return err
	}
	return g.extendEndDates(ctx, date)
}

func (g *segmenter) extendEndDates(ctx context.Context, date string) error {
	if date > g.sittingEndDate {
		err := g.run.store().Patch(ctx, "events", g.sittingID, map[string]any{"end_date": date})
		if err != nil {
			return err
		}
		g.sittingEndDate = date
	}
	if date > g.sessionEndDate {
		err := g.run.store().Patch(ctx, "events", g.sessionID, map[string]any{"end_date": date})
		if err != nil {
			return err
		}
		g.sessionEndDate = date
	}
	return nil
}
