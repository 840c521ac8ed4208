package enums

// Role is the actor role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func ParseRole(value string) (Role, error) {
	return parse("role", value, []Role{RoleCustomer, RoleAdmin})
}
