package enums

import "fmt"

// UserRole gates operator routes. Every registered shopper is a customer.
type UserRole string

const (
	UserRoleCustomer    UserRole = "customer"
	UserRoleFulfillment UserRole = "fulfillment"
)

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleCustomer, UserRoleFulfillment:
		return true
	default:
		return false
	}
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", value)
	}
	return role, nil
}
