// Package registration stages sign-ups until the emailed verification code
// is confirmed, then materializes the user account.
package registration

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/hospital"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/identity"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/cache"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
)

var (
	ErrAlreadyRegistered = apperr.BadRequest("Email already registered")
	ErrCodeExpired       = apperr.NotFound("Verification code expired or not found")
	ErrAlreadyVerified   = apperr.Conflict("Email already verified")
	ErrInvalidCode       = apperr.BadRequest("Invalid verification code")
	ErrTooManyAttempts   = apperr.New(http.StatusTooManyRequests, "Too many verification attempts")
	ErrSessionExpired    = apperr.BadRequest("Registration session expired. Please sign up again.")
	ErrSendFailed        = apperr.Internal("Failed to send verification email")
	ErrInvalidHospital   = apperr.BadRequest("hospital_name must contain letters or digits")
)

// Users is the part of the user store registration needs.
type Users interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u *identity.User) error
}

type Hospitals interface {
	EnsureByName(ctx context.Context, name string) (*hospital.Hospital, error)
}

type TokenIssuer interface {
	IssueFor(u *identity.User) (*identity.TokenResponse, error)
}

type Config struct {
	CodeTTL  time.Duration
	Cooldown time.Duration
}

type Service struct {
	repo      Repository
	users     Users
	hospitals Hospitals
	tokens    TokenIssuer
	tx        db.Transactor
	limiter   cache.AttemptLimiter
	sender    notification.EmailSender
	templates *notification.TemplateEngine
	cfg       Config
	logger    zerolog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

func NewService(
	repo Repository,
	users Users,
	hospitals Hospitals,
	tokens TokenIssuer,
	tx db.Transactor,
	limiter cache.AttemptLimiter,
	sender notification.EmailSender,
	templates *notification.TemplateEngine,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		hospitals: hospitals,
		tokens:    tokens,
		tx:        tx,
		limiter:   limiter,
		sender:    sender,
		templates: templates,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   GenerateCode,
	}
}

// GenerateCode returns a uniformly random six-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// purge drops expired registrations in its own transaction so the cleanup
// survives a rollback of the request that triggered it.
func (s *Service) purge(ctx context.Context, now time.Time) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.PurgeExpired(ctx, now.Add(-s.cfg.CodeTTL))
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("purge expired registrations")
	}
	return err
}

func (s *Service) cooldownError() error {
	return apperr.New(http.StatusTooManyRequests,
		fmt.Sprintf("Please wait %d minutes before requesting another code", int(s.cfg.Cooldown.Minutes())))
}

// SignUp stages the registration and emails a verification code.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := identity.NormalizeEmail(req.Email)
	now := s.now()
	var code string

	if hospital.Slugify(req.HospitalName) == "" {
		return nil, ErrInvalidHospital
	}
	if err := s.purge(ctx, now); err != nil {
		return nil, err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockEmail(ctx, email); err != nil {
			return err
		}
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyRegistered
		}

		tok, err := s.repo.LockToken(ctx, email)
		if err != nil {
			return err
		}
		if tok != nil && !tok.IsVerified && now.Sub(tok.CreatedAt) < s.cfg.Cooldown {
			return s.cooldownError()
		}

		if code, err = s.newCode(); err != nil {
			return err
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return err
		}

		staging := &Staging{
			Email:        email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Role:         req.Role,
			HospitalName: strings.TrimSpace(req.HospitalName),
			CreatedAt:    now,
		}
		if err := s.repo.UpsertStaging(ctx, staging); err != nil {
			return err
		}
		return s.repo.UpsertToken(ctx, email, code, now)
	})
	if err != nil {
		if _, ok := apperr.As(err); !ok {
			s.logger.Error().Err(err).Str("email", email).Msg("sign up failed")
		}
		return nil, err
	}

	if err := s.sendCode(ctx, email, code); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("send verification email")
		return nil, ErrSendFailed
	}
	return &SignUpResponse{Message: "Verification code sent to your email", Email: email}, nil
}

func (s *Service) sendCode(ctx context.Context, email, code string) error {
	rendered, err := s.templates.Render(notification.TemplateVerificationCode, notification.VerificationData{
		Code:         code,
		ExpiresHours: int(s.cfg.CodeTTL.Hours()),
		Year:         s.now().Year(),
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, notification.Message{
		To:       email,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTMLBody,
		TextBody: rendered.TextBody,
	})
}

// VerifyEmail checks the code and turns the staged registration into a user.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyRequest) (*identity.TokenResponse, error) {
	email := identity.NormalizeEmail(req.Email)
	now := s.now()
	var user *identity.User

	if err := s.purge(ctx, now); err != nil {
		return nil, err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockEmail(ctx, email); err != nil {
			return err
		}
		tok, err := s.repo.LockToken(ctx, email)
		if err != nil {
			return err
		}
		if tok == nil {
			return ErrCodeExpired
		}
		if tok.IsVerified {
			return ErrAlreadyVerified
		}
		if !tok.CreatedAt.After(now.Add(-s.cfg.CodeTTL)) {
			return ErrCodeExpired
		}

		blocked, err := s.limiter.Exceeded(ctx, email)
		if err != nil {
			return err
		}
		if blocked {
			return ErrTooManyAttempts
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tok.Code)), []byte(req.Code)) != 1 {
			if _, err := s.limiter.Fail(ctx, email); err != nil {
				s.logger.Warn().Err(err).Str("email", email).Msg("record failed verification attempt")
			}
			return ErrInvalidCode
		}

		staging, err := s.repo.LockStaging(ctx, email)
		if err != nil {
			return err
		}
		if staging == nil {
			return ErrSessionExpired
		}

		h, err := s.hospitals.EnsureByName(ctx, staging.HospitalName)
		if err != nil {
			return err
		}
		user = &identity.User{
			Email:        staging.Email,
			PasswordHash: staging.PasswordHash,
			FirstName:    staging.FirstName,
			LastName:     staging.LastName,
			Role:         staging.Role,
			HospitalID:   &h.ID,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if err := s.repo.MarkVerified(ctx, email, now); err != nil {
			return err
		}
		return s.repo.DeleteStaging(ctx, email)
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailRegistered) {
			s.cleanupOrphans(ctx, email)
			return nil, identity.ErrEmailRegistered
		}
		if _, ok := apperr.As(err); !ok {
			s.logger.Error().Err(err).Str("email", email).Msg("verification failed")
		}
		return nil, err
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("reset verification attempts")
	}
	s.logger.Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("user registered")
	return s.tokens.IssueFor(user)
}

// cleanupOrphans removes the staging and token rows left behind when a
// concurrent verification already created the user.
func (s *Service) cleanupOrphans(ctx context.Context, email string) {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DeleteStaging(ctx, email); err != nil {
			return err
		}
		return s.repo.DeleteToken(ctx, email)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("cleanup after duplicate registration")
	}
}
