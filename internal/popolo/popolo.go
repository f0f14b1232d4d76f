// Package popolo defines the entity records persisted to the store.
// Field names follow the Popolo vocabulary the store exposes; optional
// fields marshal away entirely so a PUT replaces exactly what was
// scraped and removes properties that no longer exist upstream.
package popolo

// Identifier is a natural key assigned by the source website. The pair
// (identifier, scheme) recognizes the same real-world entity across
// repeated scrapes, independently of store-assigned ids.
type Identifier struct {
	Identifier string `json:"identifier"`
	Scheme     string `json:"scheme"`
}

type Source struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

type Link struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

type ContactDetail struct {
	Label string `json:"label,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

type Person struct {
	ID               string          `json:"id,omitempty"`
	Name             string          `json:"name"`
	FamilyName       string          `json:"family_name,omitempty"`
	GivenName        string          `json:"given_name,omitempty"`
	AdditionalName   string          `json:"additional_name,omitempty"`
	HonorificPrefix  string          `json:"honorific_prefix,omitempty"`
	HonorificSuffix  string          `json:"honorific_suffix,omitempty"`
	SortName         string          `json:"sort_name,omitempty"`
	Email            string          `json:"email,omitempty"`
	Gender           string          `json:"gender,omitempty"`
	BirthDate        string          `json:"birth_date,omitempty"`
	Image            string          `json:"image,omitempty"`
	NationalIdentity string          `json:"national_identity,omitempty"`
	Identifiers      []Identifier    `json:"identifiers,omitempty"`
	ContactDetails   []ContactDetail `json:"contact_details,omitempty"`
	Links            []Link          `json:"links,omitempty"`
	Sources          []Source        `json:"sources,omitempty"`
}

type Organization struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name"`
	Classification  string          `json:"classification,omitempty"`
	ParentID        string          `json:"parent_id,omitempty"`
	FoundingDate    string          `json:"founding_date,omitempty"`
	DissolutionDate string          `json:"dissolution_date,omitempty"`
	Identifiers     []Identifier    `json:"identifiers,omitempty"`
	ContactDetails  []ContactDetail `json:"contact_details,omitempty"`
	Links           []Link          `json:"links,omitempty"`
	Sources         []Source        `json:"sources,omitempty"`
}

// Membership has no natural key of its own, its identity is inferred
// from temporal/role compatibility by the merge engine.
type Membership struct {
	ID             string   `json:"id,omitempty"`
	Label          string   `json:"label,omitempty"`
	Role           string   `json:"role,omitempty"`
	Post           string   `json:"post,omitempty"`
	PersonID       string   `json:"person_id"`
	OrganizationID string   `json:"organization_id"`
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
	// set by the store on every write, read back for staleness checks
	UpdatedAt string `json:"updated_at,omitempty"`
}

type LegislativeSession struct {
	Name string `json:"name"`
}

type Motion struct {
	ID                 string              `json:"id,omitempty"`
	OrganizationID     string              `json:"organization_id"`
	LegislativeSession *LegislativeSession `json:"legislative_session,omitempty"`
	Text               string              `json:"text"`
	Date               string              `json:"date,omitempty"`
	Result             string              `json:"result,omitempty"`
	Sources            []Source            `json:"sources,omitempty"`
}

type VoteCount struct {
	Option string `json:"option"`
	Value  int    `json:"value"`
}

type VoteEvent struct {
	ID                 string              `json:"id,omitempty"`
	Identifier         string              `json:"identifier,omitempty"`
	MotionID           string              `json:"motion_id"`
	OrganizationID     string              `json:"organization_id"`
	LegislativeSession *LegislativeSession `json:"legislative_session,omitempty"`
	StartDate          string              `json:"start_date,omitempty"`
	Result             string              `json:"result,omitempty"`
	Counts             []VoteCount         `json:"counts,omitempty"`
	Sources            []Source            `json:"sources,omitempty"`
}

type Vote struct {
	ID          string `json:"id,omitempty"`
	VoteEventID string `json:"vote_event_id"`
	Option      string `json:"option"`
	VoterID     string `json:"voter_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
}

// Event is a session or sitting container. Identifier is a natural key
// scoped by (organization, type, parent). EndDate only ever grows as
// later content of the event is discovered.
type Event struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Identifier     string   `json:"identifier,omitempty"`
	Type           string   `json:"type"`
	OrganizationID string   `json:"organization_id,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

type Speech struct {
	ID          string   `json:"id,omitempty"`
	EventID     string   `json:"event_id"`
	CreatorID   string   `json:"creator_id,omitempty"`
	Attribution string   `json:"attribution_text,omitempty"`
	Type        string   `json:"type"`
	Position    int      `json:"position"`
	Text        string   `json:"text,omitempty"`
	Date        string   `json:"date,omitempty"`
	Sources     []Source `json:"sources,omitempty"`
}
