// Package validation checks and cleans public form submissions before they
// reach storage.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

const (
	minNameLength = 2
	maxNameLength = 100
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	postcodePattern = regexp.MustCompile(`(?i)^[A-Z]{1,2}[0-9][A-Z0-9]?\s?[0-9][A-Z]{2}$`)
)

// Submission is the raw payload of a public lead form.
type Submission struct {
	Name        string
	Email       string
	Phone       string
	Postcode    string
	Address     string
	ServiceType string
	FormData    map[string]any
	Attribution models.Attribution
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	IsValid bool
	Errors  []FieldError
}

// Validate applies the contact field rules. It has no side effects.
func Validate(sub Submission) Result {
	var errs []FieldError

	name := strings.TrimSpace(sub.Name)
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		errs = append(errs, FieldError{Field: "name", Message: "name must be between 2 and 100 characters"})
	}

	if email := strings.TrimSpace(sub.Email); email != "" && !emailPattern.MatchString(email) {
		errs = append(errs, FieldError{Field: "email", Message: "email address is not valid"})
	}

	if phone := strings.TrimSpace(sub.Phone); phone != "" && !ValidPhone(phone) {
		errs = append(errs, FieldError{Field: "phone", Message: "phone number is not valid"})
	}

	if postcode := strings.TrimSpace(sub.Postcode); postcode != "" && !postcodePattern.MatchString(postcode) {
		errs = append(errs, FieldError{Field: "postcode", Message: "postcode is not a valid UK postcode"})
	}

	if !models.ServiceType(sub.ServiceType).Valid() {
		errs = append(errs, FieldError{Field: "serviceType", Message: "service type is not recognised"})
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phoneSeparators.Replace(strings.TrimSpace(phone)))
}

// NormalizePostcode upper-cases a UK postcode and puts the single space
// before the inward code.
func NormalizePostcode(postcode string) string {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(postcode), " ", ""))
	if len(compact) < 5 {
		return compact
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}
