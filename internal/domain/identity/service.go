package identity

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
)

var (
	ErrUserNotFound       = apperr.NotFound("User not found")
	ErrNoHospital         = apperr.NotFound("User or hospital not found")
	ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	ErrInvalidToken       = apperr.Unauthorized("Invalid or expired token")
	ErrInvalidPayload     = apperr.Unauthorized("Invalid token payload")
	ErrTokenMismatch      = apperr.Unauthorized("Token data mismatch with database")
	ErrWrongCurrent       = apperr.BadRequest("Current password is incorrect")
	ErrShortPassword      = apperr.BadRequest("New password must be at least 8 characters long")
	ErrNoFields           = apperr.BadRequest("No fields provided for update")
	ErrEmailExists        = apperr.BadRequest("Email already exists")
	ErrWrongPassword      = apperr.BadRequest("Password is incorrect")
	ErrEmailRegistered    = apperr.Conflict("Email already registered")
)

const minPasswordLen = 8

type Service struct {
	users  UserRepository
	tx     db.Transactor
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(users UserRepository, tx db.Transactor, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{users: users, tx: tx, tokens: tokens, logger: logger}
}

// IssueFor signs an access token for u.
func (s *Service) IssueFor(u *User) (*TokenResponse, error) {
	token, err := s.tokens.Issue(auth.Subject{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      u.ID,
		Role:        u.Role,
		Email:       u.Email,
	}, nil
}

// SignIn checks the credentials and issues a token. Unknown emails still pay
// for a bcrypt comparison.
func (s *Service) SignIn(ctx context.Context, email, password string) (*TokenResponse, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			auth.BurnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueFor(u)
}

// RefreshToken reissues a still-valid token after confirming its claims
// match the stored user.
func (s *Service) RefreshToken(ctx context.Context, token string) (*TokenResponse, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.Subject == "" || claims.Role == "" {
		return nil, ErrInvalidPayload
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Email, claims.Subject) || u.Role != claims.Role {
		s.logger.Warn().Int64("user_id", u.ID).Msg("refresh token claims do not match user record")
		return nil, ErrTokenMismatch
	}
	return s.IssueFor(u)
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	return s.users.GetProfile(ctx, userID)
}

func (s *Service) HospitalIDForUser(ctx context.Context, userID int64) (int64, error) {
	return s.users.HospitalIDForUser(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, current) {
		return ErrWrongCurrent
	}
	if utf8.RuneCountInString(next) < minPasswordLen {
		return ErrShortPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// UpdateProfile applies upd and returns the new profile. emailChanged tells
// the caller the current token no longer matches and a new sign-in is needed.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (p *Profile, emailChanged bool, err error) {
	if upd.Empty() {
		return nil, false, ErrNoFields
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if upd.Email != nil {
			email := NormalizeEmail(*upd.Email)
			upd.Email = &email
			emailChanged = email != NormalizeEmail(current.Email)
		}
		if err := s.users.UpdateProfile(ctx, userID, upd); err != nil {
			return err
		}
		p, err = s.users.GetProfile(ctx, userID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, emailChanged, nil
}

// DeleteAccount removes the user after a password check. Foreign keys null
// out the patient references.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, password string) (*DeleteResult, error) {
	var res *DeleteResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if !auth.CheckPassword(u.PasswordHash, password) {
			return ErrWrongPassword
		}
		affected, err := s.users.CountLinkedPatients(ctx, userID, u.Role)
		if err != nil {
			return err
		}
		if err := s.users.Delete(ctx, userID); err != nil {
			return err
		}
		res = &DeleteResult{
			Message:          "Account deleted successfully",
			DeletedUserEmail: u.Email,
			PatientsAffected: affected,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", userID).Int("patients_affected", res.PatientsAffected).Msg("account deleted")
	return res, nil
}
