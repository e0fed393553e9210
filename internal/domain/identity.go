package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleStaff
}

// Identity is the resolved caller of a request or connection. It is
// produced by token verification; the account system owning users is
// external and the chat core stores only these foreign keys.
type Identity struct {
	UserID      string
	Role        Role
	DisplayName string
	AvatarURL   string
}
