package models

import "time"

type ServiceType string

const (
	ServiceECO4             ServiceType = "eco4"
	ServiceSolar            ServiceType = "solar"
	ServiceGasBoiler        ServiceType = "gas_boiler"
	ServiceHomeImprovements ServiceType = "home_improvements"
	ServiceContact          ServiceType = "contact"
)

var ServiceTypes = []ServiceType{
	ServiceECO4,
	ServiceSolar,
	ServiceGasBoiler,
	ServiceHomeImprovements,
	ServiceContact,
}

func (s ServiceType) Valid() bool {
	for _, t := range ServiceTypes {
		if s == t {
			return true
		}
	}
	return false
}

type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusContacted    LeadStatus = "contacted"
	LeadStatusQualified    LeadStatus = "qualified"
	LeadStatusSurveyBooked LeadStatus = "survey_booked"
	LeadStatusConverted    LeadStatus = "converted"
	LeadStatusClosed       LeadStatus = "closed"
	LeadStatusLost         LeadStatus = "lost"
)

var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusSurveyBooked,
	LeadStatusConverted,
	LeadStatusClosed,
	LeadStatusLost,
}

func (s LeadStatus) Valid() bool {
	for _, st := range LeadStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Attribution is what the browser captured about where the visitor came from.
type Attribution struct {
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	PagePath    string `json:"page_path,omitempty"`
}

// UTM returns only the non-empty utm_* fields.
func (a Attribution) UTM() map[string]string {
	out := make(map[string]string, 5)
	for k, v := range map[string]string{
		"utm_source":   a.UTMSource,
		"utm_medium":   a.UTMMedium,
		"utm_campaign": a.UTMCampaign,
		"utm_content":  a.UTMContent,
		"utm_term":     a.UTMTerm,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

type Lead struct {
	ID              string
	Name            string
	Email           *string
	Phone           *string
	Postcode        *string
	Address         *string
	ServiceType     ServiceType
	FormData        map[string]any
	Attribution     Attribution
	VisitorID       *string
	SessionID       *string
	TrackingEventID *string
	Status          LeadStatus
	AdminNotes      *string
	CreatedAt       time.Time
	ContactedAt     *time.Time
	ConvertedAt     *time.Time
	UpdatedAt       time.Time
}

// ApplyStatus moves the lead to status and stamps contacted_at/converted_at
// the first time the matching status is reached. Later visits to the same
// status keep the original stamp.
func (l *Lead) ApplyStatus(status LeadStatus, now time.Time) {
	l.Status = status
	switch status {
	case LeadStatusContacted:
		if l.ContactedAt == nil {
			t := now
			l.ContactedAt = &t
		}
	case LeadStatusConverted:
		if l.ConvertedAt == nil {
			t := now
			l.ConvertedAt = &t
		}
	}
}

type LeadFilter struct {
	Status      LeadStatus
	ServiceType ServiceType
	Search      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

type LeadStats struct {
	Total         int64
	ByStatus      map[LeadStatus]int64
	ByServiceType map[ServiceType]int64
}
