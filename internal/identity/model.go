package identity

import "time"

// Role decides which parts of the marketplace an account may use.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSeller || r == RoleBuyer || r == RoleAdmin
}

// Profile holds the contact and business details of an account. Sellers fill in
// the farm location, buyers the company fields.
type Profile struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	Region       string `json:"region"`
	District     string `json:"district"`
	CompanyName  string `json:"company_name"`
	GSTNumber    string `json:"gst_number"`
	IndustryType string `json:"industry_type"`
}

// User is a registered marketplace account.
type User struct {
	ID           string
	Email        string
	Role         Role
	PasswordHash []byte
	Profile      Profile
	TokenVersion int
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the data needed to open an account.
type Registration struct {
	Email    string
	Password string
	Role     Role
	Profile  Profile
}
