package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
)

// UsersEmailKey is the unique index on lower(users.email).
const UsersEmailKey = "users_email_key"

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `user_id, email, password_hash, first_name, last_name, role, hospital_id, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.HospitalID, &u.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, hospital_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id, created_at`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.HospitalID,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, UsersEmailKey) {
			return ErrEmailRegistered
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE user_id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	var p Profile
	var hospitalName *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT u.user_id, u.email, u.first_name, u.last_name, u.role, u.hospital_id, h.hospital_name
		FROM users u
		LEFT JOIN hospitals h ON u.hospital_id = h.hospital_id
		WHERE u.user_id = $1`, id,
	).Scan(&p.UserID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.HospitalID, &hospitalName)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	p.HospitalName = NoHospital
	if hospitalName != nil && *hospitalName != "" {
		p.HospitalName = *hospitalName
	}
	return &p, nil
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET password_hash = $1 WHERE user_id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if len(sets) == 0 {
		return ErrNoFields
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE user_id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err, UsersEmailKey) {
			return ErrEmailExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) CountLinkedPatients(ctx context.Context, id int64, role string) (int, error) {
	col := "created_by"
	if role == "doctor" {
		col = "assigned_doctor_id"
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+col+` = $1`, id).Scan(&n)
	return n, err
}

func (r *userRepoPG) HospitalIDForUser(ctx context.Context, id int64) (int64, error) {
	var hospitalID *int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT hospital_id FROM users WHERE user_id = $1`, id).Scan(&hospitalID)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, ErrNoHospital
		}
		return 0, err
	}
	if hospitalID == nil {
		return 0, ErrNoHospital
	}
	return *hospitalID, nil
}
