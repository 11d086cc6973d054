package shipments

import (
	"reflect"
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/go-playground/validator/v10"
)

// shippingAddress is the address flattened the way the carrier wants it.
type shippingAddress struct {
	FirstName   string `field:"firstName" validate:"required"`
	LastName    string `field:"lastName" validate:"required"`
	AddressLine string `field:"address" validate:"required"`
	City        string `field:"city" validate:"required"`
	State       string `field:"state" validate:"required"`
	Zipcode     string `field:"zipcode" validate:"required"`
	Country     string `field:"country" validate:"required"`
	Email       string `field:"email" validate:"required"`
	Phone       string `field:"phone" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("field")
	})
	return v
}

func flattenAddress(a *models.Address, defaultCountry string) shippingAddress {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.HouseNo, a.Street, a.Area} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	country := strings.TrimSpace(a.Country)
	if country == "" {
		country = defaultCountry
	}
	return shippingAddress{
		FirstName:   strings.TrimSpace(a.FirstName),
		LastName:    strings.TrimSpace(a.LastName),
		AddressLine: strings.Join(parts, ", "),
		City:        strings.TrimSpace(a.City),
		State:       strings.TrimSpace(a.State),
		Zipcode:     strings.TrimSpace(a.Zipcode),
		Country:     country,
		Email:       strings.TrimSpace(a.Email),
		Phone:       strings.TrimSpace(a.Phone),
	}
}

func (s *Service) validateAddress(a *models.Address) (shippingAddress, error) {
	if a == nil {
		return shippingAddress{}, &IncompleteAddressError{Missing: addressFields()}
	}
	addr := flattenAddress(a, s.settings.DefaultCountry)
	err := s.validate.Struct(addr)
	if err == nil {
		return addr, nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return shippingAddress{}, err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return shippingAddress{}, &IncompleteAddressError{Missing: missing}
}

func addressFields() []string {
	t := reflect.TypeOf(shippingAddress{})
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		out = append(out, t.Field(i).Tag.Get("field"))
	}
	return out
}
