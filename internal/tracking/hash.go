package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// UserData is raw visitor PII. It never leaves the process unhashed.
type UserData struct {
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	Postcode   string
	City       string
	Country    string
	ExternalID string
}

// HashedUserData is the user_data object of a conversions event.
type HashedUserData struct {
	Email           []string `json:"em,omitempty"`
	Phone           []string `json:"ph,omitempty"`
	FirstName       []string `json:"fn,omitempty"`
	LastName        []string `json:"ln,omitempty"`
	Postcode        []string `json:"zp,omitempty"`
	City            []string `json:"ct,omitempty"`
	Country         []string `json:"country,omitempty"`
	ExternalID      []string `json:"external_id,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
}

// HashValue returns the hex sha256 of the lower-cased, trimmed value, or ""
// when nothing is left to hash.
func HashValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func digitsOnly(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v)
}

// SplitName splits a full name at the first space.
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func hashed(v string) []string {
	if h := HashValue(v); h != "" {
		return []string{h}
	}
	return nil
}

// Hash applies the per-field normalisation and digests every field.
func (u UserData) Hash() HashedUserData {
	return HashedUserData{
		Email:      hashed(u.Email),
		Phone:      hashed(digitsOnly(u.Phone)),
		FirstName:  hashed(u.FirstName),
		LastName:   hashed(u.LastName),
		Postcode:   hashed(strings.ReplaceAll(u.Postcode, " ", "")),
		City:       hashed(strings.ReplaceAll(u.City, " ", "")),
		Country:    hashed(u.Country),
		ExternalID: hashed(u.ExternalID),
	}
}
