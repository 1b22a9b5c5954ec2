package identity

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) error
	Delete(ctx context.Context, id int64) error
	// CountLinkedPatients counts patients the user created (nurse) or is
	// assigned to (doctor).
	CountLinkedPatients(ctx context.Context, id int64, role string) (int, error)
	// HospitalIDForUser returns ErrNoHospital when the user is missing or has
	// no hospital.
	HospitalIDForUser(ctx context.Context, id int64) (int64, error)
}
