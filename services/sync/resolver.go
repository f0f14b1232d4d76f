package sync

import (
	"context"
	"fmt"

	"nrsr-backend/internal/popolo"
	"nrsr-backend/lib/vpapi"
)

// scheme is the identifier scheme of natural keys assigned by the
// source website.
const scheme = "nrsr.sk"

func naturalKey(id string) popolo.Identifier {
	return popolo.Identifier{Identifier: id, Scheme: scheme}
}

// findOrganization looks an organization up by natural key and
// classification. A miss is not an error.
func (r *run) findOrganization(ctx context.Context, classification, externalID string) (string, bool, error) {
	cacheKey := classification + "/" + externalID
	if id, ok := r.orgIDs[cacheKey]; ok {
		return id, true, nil
	}

	var org popolo.Organization
	found, err := r.store().GetFirst(ctx, "organizations", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.Eq("classification", classification),
			vpapi.ElemMatch("identifiers", naturalKey(externalID)),
		},
	}, &org)
	if err != nil || !found {
		return "", false, err
	}
	r.orgIDs[cacheKey] = org.ID
	return org.ID, true, nil
}

// resolveOrganization maps an organization's natural key to its store
// id, creating the record through factory on first sight. Resolving an
// organization never touches memberships.
func (r *run) resolveOrganization(ctx context.Context, classification, externalID string, factory func(ctx context.Context) (popolo.Organization, error)) (string, error) {
	id, found, err := r.findOrganization(ctx, classification, externalID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}

	org, err := factory(ctx)
	if err != nil {
		return "", err
	}
	id, err = r.store().Create(ctx, "organizations", org)
	if err != nil {
		return "", fmt.Errorf("failed to create %s %q: %w", classification, org.Name, err)
	}
	r.orgIDs[classification+"/"+externalID] = id
	return id, nil
}

// resolvePerson maps an MP's source id to a store id. An MP seen for
// the first time triggers a full profile scrape, so a membership or a
// vote may be persisted before the people run ever visited its person.
func (r *run) resolvePerson(ctx context.Context, mpID string) (string, error) {
	if id, ok := r.personIDs[mpID]; ok {
		return id, nil
	}

	var person popolo.Person
	found, err := r.store().GetFirst(ctx, "people", vpapi.Query{
		Where: []vpapi.Condition{
			vpapi.ElemMatch("identifiers", naturalKey(mpID)),
		},
	}, &person)
	if err != nil {
		return "", err
	}
	if found {
		r.personIDs[mpID] = person.ID
		return person.ID, nil
	}

	profile, err := r.source().MP(ctx, mpID, r.term)
	if err != nil {
		return "", fmt.Errorf("failed to scrape MP %s: %w", mpID, err)
	}
	return r.savePerson(ctx, profile)
}
