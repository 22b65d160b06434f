package authz

const (
	RoleRequester = 10
	RoleProvider  = 20
)

func IsRequester(roleID int) bool {
	return roleID == RoleRequester
}

func IsProvider(roleID int) bool {
	return roleID == RoleProvider
}
