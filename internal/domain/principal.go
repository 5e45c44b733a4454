package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrDuplicateIdentity      = errors.New("username or email already exists")
	ErrInvalidCredentials     = errors.New("invalid username or password")
	ErrTokenInvalid           = errors.New("token is invalid or expired")
	ErrPrincipalInactive      = errors.New("account is deactivated")
	ErrUnauthorized           = errors.New("role not permitted for this operation")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidBloodType       = errors.New("invalid blood type")
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RoleNurse      Role = "NURSE"
	RoleTechnician Role = "TECHNICIAN"
	RoleDonor      Role = "DONOR"
	RoleRecipient  Role = "RECIPIENT"
)

// Roles lists every role in declaration order.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleTechnician, RoleDonor, RoleRecipient}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

type BloodType string

const (
	BloodTypeAPositive  BloodType = "A_POSITIVE"
	BloodTypeANegative  BloodType = "A_NEGATIVE"
	BloodTypeBPositive  BloodType = "B_POSITIVE"
	BloodTypeBNegative  BloodType = "B_NEGATIVE"
	BloodTypeABPositive BloodType = "AB_POSITIVE"
	BloodTypeABNegative BloodType = "AB_NEGATIVE"
	BloodTypeOPositive  BloodType = "O_POSITIVE"
	BloodTypeONegative  BloodType = "O_NEGATIVE"
)

var BloodTypes = []BloodType{
	BloodTypeAPositive, BloodTypeANegative,
	BloodTypeBPositive, BloodTypeBNegative,
	BloodTypeABPositive, BloodTypeABNegative,
	BloodTypeOPositive, BloodTypeONegative,
}

var bloodTypeDisplay = map[BloodType]string{
	BloodTypeAPositive:  "A+",
	BloodTypeANegative:  "A-",
	BloodTypeBPositive:  "B+",
	BloodTypeBNegative:  "B-",
	BloodTypeABPositive: "AB+",
	BloodTypeABNegative: "AB-",
	BloodTypeOPositive:  "O+",
	BloodTypeONegative:  "O-",
}

func (b BloodType) Valid() bool {
	_, ok := bloodTypeDisplay[b]
	return ok
}

// Display returns the short clinical notation, e.g. "AB-".
func (b BloodType) Display() string {
	if d, ok := bloodTypeDisplay[b]; ok {
		return d
	}
	return string(b)
}

// ParseBloodType accepts either the enum name ("O_NEGATIVE", any case) or the
// clinical notation ("O-").
func ParseBloodType(s string) (BloodType, error) {
	s = strings.TrimSpace(s)
	for bt, display := range bloodTypeDisplay {
		if s == display {
			return bt, nil
		}
	}
	bt := BloodType(strings.ToUpper(s))
	if !bt.Valid() {
		return "", ErrInvalidBloodType
	}
	return bt, nil
}

// Principal is a user account. PasswordHash is a bcrypt hash and must never be
// serialized to clients.
type Principal struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	PhoneNumber  string
	Role         Role
	BloodType    *BloodType // nil when unknown
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
