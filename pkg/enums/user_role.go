package enums

import "fmt"

// UserRole identifies which surface of the marketplace a caller belongs to.
type UserRole string

const (
	UserRoleBuyer           UserRole = "buyer"
	UserRoleVendor          UserRole = "vendor"
	UserRoleDeliveryPartner UserRole = "delivery_partner"
	UserRoleAdmin           UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleBuyer,
	UserRoleVendor,
	UserRoleDeliveryPartner,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (u UserRole) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserRole.
func (u UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
