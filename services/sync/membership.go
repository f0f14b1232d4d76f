package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/skdate"
	"nrsr-backend/lib/vpapi"
)

// staleGrace distinguishes memberships touched by the current run from
// leftovers of previous runs when closing stale ones. There are no
// concurrent writers, the window only needs to cover one run.
const staleGrace = 10 * time.Minute

// compatible reports whether two field values may describe the same
// membership: one of them is unknown or they agree.
func compatible(a, b string) bool {
	return a == "" || b == "" || a == b
}

// refine keeps the more specific of two compatible values.
func refine(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// saveMembership merges a candidate membership into the store.
//
// All memberships of the (person, organization) pair are scanned newest
// start date first; the first record compatible with the candidate on
// start_date, role and post is refined with the candidate's values and
// replaced in place. end_date never participates in the compatibility
// check, it is a correctable guess rather than identity.
//
// Without a compatible record a new one is created, unless allowCreate
// is false. Closures of memberships whose opening was never observed
// pass false so no start date gets fabricated.
func (r *run) saveMembership(ctx context.Context, m popolo.Membership, allowCreate bool) error {
	if m.StartDate != "" && m.EndDate != "" && m.StartDate > m.EndDate {
		return fmt.Errorf("membership of person %s in organization %s starts %s after it ends %s",
			m.PersonID, m.OrganizationID, m.StartDate, m.EndDate)
	}

	var existing []popolo.Membership
	err := r.store().GetAll(ctx, "memberships", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("person_id", m.PersonID),
			vpapi.Eq("organization_id", m.OrganizationID),
		},
		Sort: []vpapi.SortKey{{Field: "start_date", Desc: true}},
	}, &existing)
	if err != nil {
		return err
	}

	for _, record := range existing {
		if !compatible(record.StartDate, m.StartDate) ||
			!compatible(record.Role, m.Role) ||
			!compatible(record.Post, m.Post) {
			continue
		}
		m.StartDate = refine(m.StartDate, record.StartDate)
		m.Role = refine(m.Role, record.Role)
		m.Post = refine(m.Post, record.Post)
		m.ID = ""
		m.UpdatedAt = ""
		return r.store().Replace(ctx, "memberships", record.ID, m, r.effectiveDate)
	}

	if !allowCreate {
		return nil
	}
	_, err = r.store().Create(ctx, "memberships", m)
	return err
}

// closeStaleMemberships ends every open membership of an organization
// that the just-finished roster pass did not touch: the member silently
// disappeared from the roster between scrapes.
func (r *run) closeStaleMemberships(ctx context.Context, orgID string) error {
	threshold := r.svc.opts.Now().Add(-staleGrace).Format("2006-01-02 15:04:05")
	endDate, err := skdate.AddDays(r.effectiveDate, -1)
	if err != nil {
		return err
	}

	var stale []popolo.Membership
	err = r.store().GetAll(ctx, "memberships", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("organization_id", orgID),
			vpapi.Empty("end_date"),
			vpapi.Lt("updated_at", threshold),
		},
	}, &stale)
	if err != nil {
		return err
	}

	for _, m := range stale {
		slog.InfoContext(ctx, "closing stale membership",
			"person_id", m.PersonID, "organization_id", orgID, "end_date", endDate)
		err = r.store().Patch(ctx, "memberships", m.ID, map[string]any{"end_date": endDate})
		if err != nil {
			return err
		}
	}
	return nil
}

// mandateChangeKinds maps the change-list wording to whether the change
// opens or closes a chamber membership. A wording missing here means
// the table is stale and the run must not guess.
var mandateChangeKinds = map[string]string{
	"Mandát vykonávaný (aktívny poslanec)": "start",
	"Mandát náhradníka vykonávaný":         "start",
	"Mandát náhradníka získaný":            "start",
	"Mandát nadobudnutý vo voľbách":        "start",
	"Mandát sa neuplatňuje":                "end",
	"Mandát zaniknutý":                     "end",
	"Mandát sa zánikom mandátu neuplatňuje": "end",
	"Mandát náhradníka zaniknutý":           "end",
	"Mandát náhradníka zaniknutý - vykonáva sa mandát poslanca": "end",
}

// syncChamberChanges replays the chamber's mandate change log as
// chamber membership openings and closures.
func (r *run) syncChamberChanges(ctx context.Context) error {
	changes, err := r.source().ChangeList(ctx, r.term)
	if err != nil {
		return err
	}

	// the site lists changes newest first, replay them in order
	for i := len(changes.Items) - 1; i >= 0; i-- {
		change := changes.Items[i]
		kind, ok := mandateChangeKinds[change.Change]
		if !ok {
			return fmt.Errorf("unknown mandate change %q for MP %s", change.Change, change.MPID)
		}
		date, err := skdate.ToISO(change.Date)
		if err != nil {
			return fmt.Errorf("mandate change of MP %s: %w", change.MPID, err)
		}

		personID, err := r.resolvePerson(ctx, change.MPID)
		if err != nil {
			return err
		}
		m := popolo.Membership{
			PersonID:       personID,
			OrganizationID: r.chamberID,
			Label:          "Poslanec NRSR",
			Role:           "member",
			Sources:        []popolo.Source{{URL: changes.URL}},
		}
		if kind == "start" {
			m.StartDate = date
			err = r.saveMembership(ctx, m, true)
		} else {
			m.EndDate = date
			err = r.saveMembership(ctx, m, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// speakerMPID is the MP holding the speaker chair in term 6. The site
// publishes no speaker page, only the deputy speaker list.
const speakerMPID = "286"

// syncChamberOfficials records the speaker and the current deputy
// speakers as chamber memberships with a distinguishing post. Only
// meaningful for the current term, the site has no historical officials
// list.
func (r *run) syncChamberOfficials(ctx context.Context) error {
	current, err := r.source().CurrentTerm(ctx)
	if err != nil {
		return err
	}
	if r.term != current {
		return nil
	}

	speakers, err := r.source().DeputySpeakers(ctx)
	if err != nil {
		return err
	}
	for _, speaker := range speakers {
		personID, err := r.resolvePerson(ctx, speaker.ID)
		if err != nil {
			return err
		}
		err = r.saveMembership(ctx, popolo.Membership{
			PersonID:       personID,
			OrganizationID: r.chamberID,
			Label:          "Podpredseda NRSR",
			Role:           "member",
			Post:           "deputy speaker",
			Sources:        []popolo.Source{{URL: speaker.URL}},
		}, true)
		if err != nil {
			return err
		}
	}

	if r.term != "6" {
		return nil
	}
	personID, err := r.resolvePerson(ctx, speakerMPID)
	if err != nil {
		return err
	}
	return r.saveMembership(ctx, popolo.Membership{
		PersonID:       personID,
		OrganizationID: r.chamberID,
		Label:          "Predseda NRSR",
		Role:           "member",
		Post:           "speaker",
		Sources:        []popolo.Source{{URL: nrsr.MPURL(speakerMPID, r.term)}},
	}, true)
}

// groupRoles maps the roles the site uses on group rosters. A missing
// role wording stays empty so it never blocks a later merge, an
// unknown one is fatal so a new wording extends this table instead of
// leaking through untranslated.
var groupRoles = map[string]string{
	"člen":            "member",
	"členka":          "member",
	"predseda":        "chairman",
	"predsedníčka":    "chairwoman",
	"podpredseda":     "vice-chairman",
	"podpredsedníčka": "vice-chairwoman",
	"vedúci":          "chairman",
	"vedúca":          "chairwoman",
	"overovateľ":      "verifier",
	"overovateľka":    "verifier",
	"náhradník":       "substitute",
	"náhradníčka":     "substitute",
	"náhradný člen":   "substitute",
	"náhradná členka": "substitute",
	"poverený vedením klubu":              "chairman",
	"podpredseda poverený vedením výboru": "vice-chairman",
	"":                                    "",
}

// groupDate converts a roster period bound, tolerating the site's
// open-bound sentinels.
func groupDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "..." || s == "1. 1. 0001" {
		return "", nil
	}
	return skdate.ToISO(s)
}

// syncGroups scrapes all groups of one type with their rosters, then
// closes memberships of members no longer on any roster.
func (r *run) syncGroups(ctx context.Context, groupType string) error {
	groups, err := r.source().GroupList(ctx, groupType, r.term)
	if err != nil {
		return err
	}

	for _, group := range groups {
		profile, err := r.source().Group(ctx, groupType, group.ID)
		if err != nil {
			return fmt.Errorf("failed to scrape %s %s: %w", groupType, group.ID, err)
		}

		orgID, err := r.saveGroup(ctx, groupType, group, profile)
		if err != nil {
			return err
		}
		for _, member := range profile.Members {
			err = r.saveGroupMember(ctx, groupType, orgID, profile.URL, member)
			if err != nil {
				return err
			}
		}
		err = r.closeStaleMemberships(ctx, orgID)
		if err != nil {
			return err
		}
	}
	return nil
}

// saveGroup upserts a group organization: resolved or created by
// natural key, then fully replaced with the fresh profile.
func (r *run) saveGroup(ctx context.Context, groupType string, group nrsr.GroupRef, profile nrsr.GroupProfile) (string, error) {
	build := func(ctx context.Context) (popolo.Organization, error) {
		org := popolo.Organization{
			Name:           profile.Name,
			Classification: groupType,
			ParentID:       r.chamberID,
			Identifiers:    []popolo.Identifier{naturalKey(group.ID)},
			Sources:        []popolo.Source{{URL: profile.URL}},
		}
		var err error
		org.FoundingDate, err = groupDate(group.From)
		if err != nil {
			return org, fmt.Errorf("%s %s: %w", groupType, group.ID, err)
		}
		org.DissolutionDate, err = groupDate(group.To)
		if err != nil {
			return org, fmt.Errorf("%s %s: %w", groupType, group.ID, err)
		}
		for _, contact := range profile.Contacts {
			org.ContactDetails = append(org.ContactDetails, popolo.ContactDetail{
				Type:  contact.Type,
				Value: contact.Value,
			})
		}
		if profile.DocumentsURL != "" {
			org.Links = append(org.Links, popolo.Link{URL: profile.DocumentsURL, Note: "Documents"})
		}
		return org, nil
	}

	orgID, err := r.resolveOrganization(ctx, groupType, group.ID, build)
	if err != nil {
		return "", err
	}

	// re-scrapes refresh the whole record, contact info and dissolution
	// dates change over a term
	org, err := build(ctx)
	if err != nil {
		return "", err
	}
	err = r.store().Replace(ctx, "organizations", orgID, org, r.effectiveDate)
	if err != nil {
		return "", err
	}
	return orgID, nil
}

func (r *run) saveGroupMember(ctx context.Context, groupType, orgID, sourceURL string, member nrsr.GroupMember) error {
	personID, err := r.resolvePerson(ctx, member.ID)
	if err != nil {
		return err
	}

	for _, period := range member.Periods {
		role, ok := groupRoles[strings.ToLower(period.Role)]
		if !ok {
			return fmt.Errorf("unknown group role %q of MP %s", period.Role, member.ID)
		}
		m := popolo.Membership{
			PersonID:       personID,
			OrganizationID: orgID,
			Role:           role,
			Label:          strings.TrimSpace(period.Role),
			Sources:        []popolo.Source{{URL: sourceURL}},
		}
		m.StartDate, err = groupDate(period.From)
		if err != nil {
			return fmt.Errorf("membership of MP %s: %w", member.ID, err)
		}
		m.EndDate, err = groupDate(period.To)
		if err != nil {
			return fmt.Errorf("membership of MP %s: %w", member.ID, err)
		}
		err = r.saveMembership(ctx, m, true)
		if err != nil {
			return err
		}
	}
	return nil
}
