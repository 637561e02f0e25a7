package user

import "sort"

// Roles
const (
	RoleAdmin      = "admin"
	RoleMerchant   = "merchant"
	RoleIncharge   = "incharge"
	RoleTelecaller = "telecaller"
	RoleStudent    = "student"
)

// Permissions
const (
	PermUsersManage         = "users:manage"
	PermUsersRead           = "users:read"
	PermHallsManage         = "halls:manage"
	PermHallsRead           = "halls:read"
	PermBookingsCreate      = "bookings:create"
	PermBookingsRead        = "bookings:read"
	PermBookingsManage      = "bookings:manage"
	PermBookingsCheckIn     = "bookings:checkin"
	PermPaymentsRead        = "payments:read"
	PermPaymentsManage      = "payments:manage"
	PermSubscriptionsManage = "subscriptions:manage"
	PermSubscriptionsRead   = "subscriptions:read"
	PermAuditRead           = "audit:read"
	PermDashboardView       = "dashboard:view"
	PermNotificationsSend   = "notifications:send"
)

var (
	AllRoles = []string{RoleAdmin, RoleMerchant, RoleIncharge, RoleTelecaller, RoleStudent}

	AllPermissions = []string{
		PermUsersManage, PermUsersRead,
		PermHallsManage, PermHallsRead,
		PermBookingsCreate, PermBookingsRead, PermBookingsManage, PermBookingsCheckIn,
		PermPaymentsRead, PermPaymentsManage,
		PermSubscriptionsManage, PermSubscriptionsRead,
		PermAuditRead, PermDashboardView, PermNotificationsSend,
	}

	rolePriorities = map[string]int{
		RoleAdmin:      50,
		RoleMerchant:   40,
		RoleIncharge:   30,
		RoleTelecaller: 20,
		RoleStudent:    10,
	}

	// admin is not listed: it is granted everything.
	rolePermissions = map[string]permSet{
		RoleMerchant: newPermSet(
			PermUsersRead,
			PermHallsManage, PermHallsRead,
			PermBookingsRead, PermBookingsManage, PermBookingsCheckIn,
			PermPaymentsRead,
			PermSubscriptionsRead,
			PermDashboardView,
		),
		RoleIncharge: newPermSet(
			PermHallsRead,
			PermBookingsRead, PermBookingsCheckIn,
			PermDashboardView,
		),
		RoleTelecaller: newPermSet(
			PermUsersRead,
			PermHallsRead,
			PermBookingsCreate, PermBookingsRead,
			PermDashboardView,
		),
		RoleStudent: newPermSet(
			PermHallsRead,
			PermBookingsCreate, PermBookingsRead,
		),
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Telecaller", Value: RoleTelecaller},
		{Name: "Incharge", Value: RoleIncharge},
		{Name: "Merchant", Value: RoleMerchant},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type permSet map[string]struct{}

func newPermSet(perms ...string) permSet {
	set := make(permSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// IsValidRole reports whether role is one of AllRoles.
func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

// HasPermission reports whether role is granted perm. Admin is granted everything; unknown roles nothing.
func HasPermission(role, perm string) bool {
	if role == RoleAdmin {
		return true
	}
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// HasAnyRole reports whether role is one of allowed. Admin always passes; unknown roles never do.
// An empty allowed list lets any valid role through.
func HasAnyRole(role string, allowed ...string) bool {
	if !IsValidRole(role) {
		return false
	}
	if role == RoleAdmin || len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Permissions lists the permissions granted to role, sorted.
func Permissions(role string) []string {
	if role == RoleAdmin {
		perms := append([]string(nil), AllPermissions...)
		sort.Strings(perms)
		return perms
	}
	set := rolePermissions[role]
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}
