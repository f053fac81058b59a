// Package notify tells the site operator about new leads by email.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

// LeadSummary is everything the operator email shows about one lead.
type LeadSummary struct {
	LeadID      string             `json:"leadId"`
	Name        string             `json:"name" binding:"required"`
	Email       string             `json:"email,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Postcode    string             `json:"postcode,omitempty"`
	Address     string             `json:"address,omitempty"`
	ServiceType string             `json:"serviceType" binding:"required"`
	FormData    map[string]any     `json:"formData,omitempty"`
	Attribution models.Attribution `json:"attribution"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func SummaryFromLead(lead models.Lead) LeadSummary {
	return LeadSummary{
		LeadID:      lead.ID,
		Name:        lead.Name,
		Email:       deref(lead.Email),
		Phone:       deref(lead.Phone),
		Postcode:    deref(lead.Postcode),
		Address:     deref(lead.Address),
		ServiceType: string(lead.ServiceType),
		FormData:    lead.FormData,
		Attribution: lead.Attribution,
		CreatedAt:   lead.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type detailRow struct {
	Label string
	Value string
}

// details flattens form data into label/value rows in key order.
func (s LeadSummary) details() []detailRow {
	keys := make([]string, 0, len(s.FormData))
	for k := range s.FormData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]detailRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, detailRow{Label: humanize(k), Value: formatValue(s.FormData[k])})
	}
	return rows
}

func (s LeadSummary) attributionRows() []detailRow {
	utm := s.Attribution.UTM()
	keys := make([]string, 0, len(utm))
	for k := range utm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]detailRow, 0, len(keys)+2)
	if s.Attribution.Referrer != "" {
		rows = append(rows, detailRow{Label: "Referrer", Value: s.Attribution.Referrer})
	}
	if s.Attribution.PagePath != "" {
		rows = append(rows, detailRow{Label: "Page", Value: s.Attribution.PagePath})
	}
	for _, k := range keys {
		rows = append(rows, detailRow{Label: humanize(k), Value: utm[k]})
	}
	return rows
}

func humanize(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		if strings.EqualFold(w, "utm") {
			words[i] = "UTM"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(t), "\n", " "))
	}
}
