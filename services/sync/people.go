package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/skdate"
	"nrsr-backend/lib/vpapi"
)

// SyncPeople scrapes all MPs of a term with their chamber and group
// memberships. Empty term means the current one.
func (s *Service) SyncPeople(ctx context.Context, term string) error {
	ctx, span := tracer.Start(ctx, "SyncPeople")
	defer span.End()

	r, err := s.newRun(ctx, term)
	if err != nil {
		return fail(span, err)
	}
	slog.InfoContext(ctx, "syncing people", "term", r.term, "effective_date", r.effectiveDate)

	err = r.ensureChamber(ctx)
	if err != nil {
		return fail(span, err)
	}

	mps, err := s.source.MPList(ctx, r.term)
	if err != nil {
		return fail(span, err)
	}
	for _, mp := range mps {
		profile, err := s.source.MP(ctx, mp.ID, r.term)
		if err != nil {
			return fail(span, fmt.Errorf("failed to scrape MP %s: %w", mp.ID, err))
		}
		_, err = r.savePerson(ctx, profile)
		if err != nil {
			return fail(span, err)
		}
	}

	err = r.syncChamberChanges(ctx)
	if err != nil {
		return fail(span, err)
	}
	err = r.syncChamberOfficials(ctx)
	if err != nil {
		return fail(span, err)
	}

	for _, groupType := range []string{"committee", "caucus", "delegation", "friendship group"} {
		err = r.syncGroups(ctx, groupType)
		if err != nil {
			return fail(span, err)
		}
	}

	slog.InfoContext(ctx, "people synced", "term", r.term, "count", len(mps))
	return nil
}

const chamberName = "Národná rada Slovenskej republiky"

// ensureChamber resolves the chamber organization of the run's term,
// creating it with the term's bounds on first sight.
func (r *run) ensureChamber(ctx context.Context) error {
	id, err := r.resolveOrganization(ctx, "chamber", r.term, func(ctx context.Context) (popolo.Organization, error) {
		t := nrsr.Terms[r.term]
		return popolo.Organization{
			Name:            chamberName,
			Classification:  "chamber",
			FoundingDate:    t.StartDate,
			DissolutionDate: t.EndDate,
			Identifiers:     []popolo.Identifier{naturalKey(r.term)},
			ContactDetails: []popolo.ContactDetail{
				{Type: "address", Value: "Námestie Alexandra Dubčeka 1, 812 80 Bratislava 1"},
			},
			Links:   []popolo.Link{{URL: "http://www.nrsr.sk", Note: "Official website"}},
			Sources: []popolo.Source{{URL: "http://www.nrsr.sk/web/default.aspx?sid=poslanci"}},
		}, nil
	})
	if err != nil {
		return err
	}
	r.chamberID = id
	return nil
}

// buildPerson turns a scraped profile into a person record.
func buildPerson(profile nrsr.MPProfile) popolo.Person {
	person := popolo.Person{
		Name:        profile.GivenName + " " + profile.FamilyName,
		GivenName:   profile.GivenName,
		FamilyName:  profile.FamilyName,
		SortName:    profile.FamilyName + ", " + profile.GivenName,
		Email:       profile.Email,
		Gender:      guessGender(profile.FamilyName),
		Image:       profile.Photo,
		Identifiers: []popolo.Identifier{naturalKey(profile.ID)},
		Sources:     []popolo.Source{{URL: profile.URL}},
	}

	if profile.Title != "" {
		prefix, suffix, _ := strings.Cut(profile.Title, ",")
		person.HonorificPrefix = strings.TrimSpace(prefix)
		person.HonorificSuffix = strings.TrimSpace(suffix)
	}
	if profile.Born != "" {
		if born, err := skdate.ToISO(profile.Born); err == nil {
			person.BirthDate = born
		}
	}
	if profile.Nationality != "" {
		person.NationalIdentity = profile.Nationality
	}
	if profile.Website != "" {
		person.Links = []popolo.Link{{URL: profile.Website, Note: "Personal website"}}
	}
	for _, contact := range []struct{ typ, value string }{
		{"address", profile.Residence},
		{"region", profile.Region},
	} {
		if contact.value != "" {
			person.ContactDetails = append(person.ContactDetails, popolo.ContactDetail{
				Type:  contact.typ,
				Value: contact.value,
			})
		}
	}
	return person
}

// guessGender infers gender from the family name, Slovak female
// surnames end in a long á.
func guessGender(familyName string) string {
	if strings.HasSuffix(familyName, "á") {
		return "female"
	}
	return "male"
}

// savePerson writes a person record: a full replace when the natural
// key is already known, a create otherwise. Returns the store id.
func (r *run) savePerson(ctx context.Context, profile nrsr.MPProfile) (string, error) {
	person := buildPerson(profile)

	var existing popolo.Person
	found, err := r.store().GetFirst(ctx, "people", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.ElemMatch("identifiers", naturalKey(profile.ID)),
		},
	}, &existing)
	if err != nil {
		return "", err
	}

	var id string
	if found {
		id = existing.ID
		err = r.store().Replace(ctx, "people", id, person, r.effectiveDate)
	} else {
		id, err = r.store().Create(ctx, "people", person)
	}
	if err != nil {
		return "", fmt.Errorf("failed to save person %q: %w", person.Name, err)
	}

	r.personIDs[profile.ID] = id
	r.personNames[person.Name] = id
	return id, nil
}
