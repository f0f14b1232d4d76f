package nrsr

// Term bounds for all terms of office the source website knows about.
// A new term means this table must be extended by hand before the
// scraper may run against it.
type Term struct {
	StartDate string
	EndDate   string
}

var Terms = map[string]Term{
	"1": {StartDate: "1994-10-01", EndDate: "1998-09-25"},
	"2": {StartDate: "1998-09-26", EndDate: "2002-09-21"},
	"3": {StartDate: "2002-09-22", EndDate: "2006-06-16"},
	"4": {StartDate: "2006-06-17", EndDate: "2010-06-12"},
	"5": {StartDate: "2010-06-13", EndDate: "2012-03-10"},
	"6": {StartDate: "2012-03-11"},
}

// SortedTermNumbers returns the known terms oldest first.
func SortedTermNumbers() []string {
	return []string{"1", "2", "3", "4", "5", "6"}
}

type MPRef struct {
	ID   string
	Name string
}

// MembershipNote is a group membership listed on an MP profile page,
// informational only.
type MembershipNote struct {
	Group string
	Role  string
}

type MPProfile struct {
	ID          string
	URL         string
	GivenName   string
	FamilyName  string
	Title       string
	Born        string
	Email       string
	Photo       string
	Nationality string
	Residence   string
	Region      string
	Website     string
	Memberships []MembershipNote
}

type GroupRef struct {
	ID   string
	Name string
	From string
	To   string
	Note string
}

type MembershipPeriod struct {
	Role string
	From string
	To   string
}

type GroupMember struct {
	ID      string
	Name    string
	Caucus  string
	Periods []MembershipPeriod
}

type Contact struct {
	Type  string
	Value string
}

type GroupProfile struct {
	ID           string
	URL          string
	Name         string
	Subtitle     string
	Contacts     []Contact
	DocumentsURL string
	Members      []GroupMember
}

type MandateChange struct {
	Date   string
	Name   string
	MPID   string
	Caucus string
	Change string
	Reason string
}

type ChangeList struct {
	URL   string
	Items []MandateChange
}

type SessionRef struct {
	Number   string
	Name     string
	Duration string
	URL      string
}

// SessionMotion is one row of a session's motion list.
type SessionMotion struct {
	ID        string
	Date      string
	Number    string
	Name      string
	ResultURL string
}

type MPVote struct {
	MPID   string
	Name   string
	Caucus string
	Vote   string
	URL    string
}

type MotionDetail struct {
	URL           string
	SessionNumber string
	Term          string
	Date          string
	Number        string
	Name          string
	Result        string
	Counts        map[string]string
	Votes         []MPVote
}

type DeputySpeaker struct {
	ID   string
	Name string
	URL  string
}

// DebatePartRef is one entry of the new-format (term 5+) debate list.
type DebatePartRef struct {
	ID            string
	Date          string
	SessionNumber string
}

// DebatePart is one transcript segment, split into the paragraphs the
// segmentation engine consumes in order.
type DebatePart struct {
	ID         string
	URL        string
	Paragraphs []string
}
