package identity

import (
	"strings"
	"time"
)

type User struct {
	ID           int64     `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Role         string    `db:"role" json:"role"`
	HospitalID   *int64    `db:"hospital_id" json:"hospital_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DisplayName is "Dr. First Last" for doctors and "First Last" otherwise.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Role == "doctor" {
		return "Dr. " + name
	}
	return name
}

const NoHospital = "No Hospital Assigned"

type Profile struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	HospitalID   *int64 `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	Email       string `json:"email"`
}

// ProfileUpdate holds the optional fields of a profile edit. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email     *string `json:"email" validate:"omitempty,email"`
}

func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil
}

type DeleteResult struct {
	Message          string `json:"message"`
	DeletedUserEmail string `json:"deleted_user_email"`
	PatientsAffected int    `json:"patients_affected"`
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
