// Package report files citizen scam reports as cases, assigns each case to
// the responsible agency and persists it.
package report

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidReport is returned when a report fails validation.
	ErrInvalidReport = errors.New("report: invalid report")
	// ErrDuplicateCase is returned by a store when the case ID is taken.
	ErrDuplicateCase = errors.New("report: duplicate case id")
	// ErrNotFound is returned when no case has the requested ID.
	ErrNotFound = errors.New("report: not found")
)

// Status is the lifecycle state of a case. Only agency staff move a case
// past StatusOpen.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// MaxDescriptionChars bounds the free-text description of a report.
const MaxDescriptionChars = 4000

// CaseReport is a citizen-filed fraud or scam complaint.
type CaseReport struct {
	CaseID         string    `json:"caseId"`
	IncidentType   string    `json:"incidentType"`
	Description    string    `json:"description"`
	AmountLost     *float64  `json:"amountLost,omitempty"`
	VictimPhone    string    `json:"victimPhone"`
	AssignedAgency string    `json:"assignedAgency"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Filing is the citizen input to FileReport.
type Filing struct {
	IncidentType string   `json:"incidentType"`
	VictimPhone  string   `json:"victimPhone"`
	Description  string   `json:"description"`
	AmountLost   *float64 `json:"amountLost,omitempty"`
}

// Validate checks the filing and trims its text fields in place.
func (f *Filing) Validate() error {
	f.IncidentType = strings.ToLower(strings.TrimSpace(f.IncidentType))
	f.VictimPhone = strings.TrimSpace(f.VictimPhone)
	f.Description = strings.TrimSpace(f.Description)

	switch {
	case f.IncidentType == "":
		return errors.Join(ErrInvalidReport, errors.New("incident type is required"))
	case f.VictimPhone == "":
		return errors.Join(ErrInvalidReport, errors.New("victim phone is required"))
	case f.Description == "":
		return errors.Join(ErrInvalidReport, errors.New("description is required"))
	case len([]rune(f.Description)) > MaxDescriptionChars:
		return errors.Join(ErrInvalidReport, errors.New("description is too long"))
	case f.AmountLost != nil && *f.AmountLost < 0:
		return errors.Join(ErrInvalidReport, errors.New("amount lost must not be negative"))
	}
	return nil
}

// Agency is a body that receives cases.
type Agency struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

var (
	bankOfSierraLeone = Agency{Name: "Bank of Sierra Leone", Slug: "bsl"}
	policeCID         = Agency{Name: "Sierra Leone Police CID", Slug: "slp-cid"}
	cyberCentre       = Agency{Name: "National Cybersecurity Coordination Centre", Slug: "ncscc"}
	healthMinistry    = Agency{Name: "Ministry of Health and Sanitation", Slug: "mohs"}
	defaultAgency     = Agency{Name: "Sierra Leone Police", Slug: "slp"}
)

var agencies = map[string]Agency{
	"mobile_money_fraud":    bankOfSierraLeone,
	"investment":            bankOfSierraLeone,
	"banking":               bankOfSierraLeone,
	"impersonation":         policeCID,
	"phishing":              cyberCentre,
	"cyber":                 cyberCentre,
	"hacking":               cyberCentre,
	"health_misinformation": healthMinistry,
}

// AgencyFor returns the agency responsible for an incident type. Unknown
// types go to the Sierra Leone Police.
func AgencyFor(incidentType string) Agency {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(incidentType)), " ", "_")
	if a, ok := agencies[key]; ok {
		return a
	}
	return defaultAgency
}

// Agencies lists every distinct agency, default last.
func Agencies() []Agency {
	return []Agency{bankOfSierraLeone, policeCID, cyberCentre, healthMinistry, defaultAgency}
}
