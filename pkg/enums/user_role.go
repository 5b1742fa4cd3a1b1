package enums

import "fmt"

// UserRole is the account role stored on users.role.
type UserRole string

const (
	UserRoleBuyer      UserRole = "buyer"
	UserRoleStoreOwner UserRole = "store_owner"
	UserRoleAdmin      UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleBuyer,
	UserRoleStoreOwner,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// SelfAssignable reports whether a user may pick this role at registration.
func (r UserRole) SelfAssignable() bool {
	return r == UserRoleBuyer || r == UserRoleStoreOwner
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
