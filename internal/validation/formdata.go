package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

var ErrUnknownServiceType = errors.New("unknown service type")

type Eco4Details struct {
	Tenure           string   `mapstructure:"tenure,omitempty" validate:"omitempty,oneof=homeowner private_tenant social_tenant landlord"`
	PropertyType     string   `mapstructure:"property_type,omitempty" validate:"max=60"`
	HeatingType      string   `mapstructure:"heating_type,omitempty" validate:"max=60"`
	EPCRating        string   `mapstructure:"epc_rating,omitempty" validate:"omitempty,oneof=A B C D E F G unknown"`
	Occupants        int      `mapstructure:"occupants,omitempty" validate:"omitempty,min=1,max=20"`
	ReceivesBenefits *bool    `mapstructure:"receives_benefits,omitempty"`
	Benefits         []string `mapstructure:"benefits,omitempty" validate:"max=20,dive,max=80"`
}

type SolarDetails struct {
	PropertyType        string  `mapstructure:"property_type,omitempty" validate:"max=60"`
	Ownership           string  `mapstructure:"ownership,omitempty" validate:"max=60"`
	RoofType            string  `mapstructure:"roof_type,omitempty" validate:"max=60"`
	RoofOrientation     string  `mapstructure:"roof_orientation,omitempty" validate:"omitempty,oneof=north south east west north_east north_west south_east south_west flat unknown"`
	MonthlyBill         float64 `mapstructure:"monthly_bill,omitempty" validate:"min=0,max=10000"`
	InterestedInBattery *bool   `mapstructure:"interested_in_battery,omitempty"`
}

type BoilerDetails struct {
	FuelType      string `mapstructure:"fuel_type,omitempty" validate:"omitempty,oneof=gas lpg oil electric other"`
	BoilerAge     string `mapstructure:"boiler_age,omitempty" validate:"max=30"`
	BoilerWorking *bool  `mapstructure:"boiler_working,omitempty"`
	Bedrooms      int    `mapstructure:"bedrooms,omitempty" validate:"min=0,max=20"`
	Bathrooms     int    `mapstructure:"bathrooms,omitempty" validate:"min=0,max=20"`
}

type HomeImprovementDetails struct {
	Projects    []string `mapstructure:"projects,omitempty" validate:"max=10,dive,max=60"`
	Budget      string   `mapstructure:"budget,omitempty" validate:"max=60"`
	Timeline    string   `mapstructure:"timeline,omitempty" validate:"max=60"`
	Description string   `mapstructure:"description,omitempty" validate:"max=2000"`
}

type ContactDetails struct {
	Subject          string `mapstructure:"subject,omitempty" validate:"max=200"`
	Message          string `mapstructure:"message,omitempty" validate:"max=5000"`
	PreferredContact string `mapstructure:"preferred_contact,omitempty" validate:"omitempty,oneof=email phone either"`
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// NormalizeFormData decodes raw into the typed payload for serviceType,
// validates it and returns it re-encoded. Keys the payload does not know are
// reported as field errors rather than dropped.
func NormalizeFormData(serviceType models.ServiceType, raw map[string]any) (map[string]any, []FieldError, error) {
	target, err := detailsFor(serviceType)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return map[string]any{}, nil, nil
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           target,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("form data decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, []FieldError{{Field: "formData", Message: "form data has the wrong shape"}}, nil
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		fields := make([]FieldError, 0, len(md.Unused))
		for _, key := range md.Unused {
			fields = append(fields, FieldError{Field: "formData." + key, Message: "unknown field"})
		}
		return nil, fields, nil
	}

	if err := structValidator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, nil, fmt.Errorf("validate form data: %w", err)
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   "formData." + fe.Field(),
				Message: fmt.Sprintf("failed %s validation", fe.Tag()),
			})
		}
		return nil, fields, nil
	}

	out := map[string]any{}
	if err := mapstructure.Decode(target, &out); err != nil {
		return nil, nil, fmt.Errorf("encode form data: %w", err)
	}
	return out, nil, nil
}

func detailsFor(serviceType models.ServiceType) (any, error) {
	switch serviceType {
	case models.ServiceECO4:
		return &Eco4Details{}, nil
	case models.ServiceSolar:
		return &SolarDetails{}, nil
	case models.ServiceGasBoiler:
		return &BoilerDetails{}, nil
	case models.ServiceHomeImprovements:
		return &HomeImprovementDetails{}, nil
	case models.ServiceContact:
		return &ContactDetails{}, nil
	default:
		return nil, ErrUnknownServiceType
	}
}
