package types

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	shippingValidatorOnce sync.Once
	shippingValidator     *validator.Validate
)

// ShippingInfo is the buyer contact and delivery address captured at checkout.
type ShippingInfo struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"required,max=32"`
	Address   string `json:"address" validate:"required,max=255"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	ZipCode   string `json:"zipCode" validate:"required,max=20"`
}

// Normalize trims surrounding whitespace from every field.
func (s ShippingInfo) Normalize() ShippingInfo {
	return ShippingInfo{
		FirstName: strings.TrimSpace(s.FirstName),
		LastName:  strings.TrimSpace(s.LastName),
		Email:     strings.TrimSpace(s.Email),
		Phone:     strings.TrimSpace(s.Phone),
		Address:   strings.TrimSpace(s.Address),
		City:      strings.TrimSpace(s.City),
		State:     strings.TrimSpace(s.State),
		ZipCode:   strings.TrimSpace(s.ZipCode),
	}
}

// Validate checks the normalized form. Whitespace-only fields count as missing.
// The returned error is a validator.ValidationErrors on field failures.
func (s ShippingInfo) Validate() error {
	shippingValidatorOnce.Do(func() {
		shippingValidator = validator.New()
	})
	return shippingValidator.Struct(s.Normalize())
}

// MissingFields lists the JSON names of fields failing validation.
func MissingFields(err error) []string {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, jsonName(fe.Field()))
		}
	}
	return fields
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
