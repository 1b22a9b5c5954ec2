package registration

import "time"

// Staging is a sign-up waiting for its email to be verified.
type Staging struct {
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Role         string    `db:"role"`
	HospitalName string    `db:"hospital_name"`
	CreatedAt    time.Time `db:"created_at"`
}

// Token is the verification code issued for an email. There is at most one
// per email.
type Token struct {
	Email      string     `db:"email"`
	Code       string     `db:"code"`
	IsVerified bool       `db:"is_verified"`
	CreatedAt  time.Time  `db:"created_at"`
	VerifiedAt *time.Time `db:"verified_at"`
}

type SignUpRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,strongpassword"`
	FirstName    string `json:"first_name" validate:"required,min=1,max=50"`
	LastName     string `json:"last_name" validate:"required,min=1,max=50"`
	Role         string `json:"role" validate:"required,oneof=nurse doctor"`
	HospitalName string `json:"hospital_name" validate:"required,min=1,max=100"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"verification_code" validate:"required,len=6,numeric"`
}

type SignUpResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}
