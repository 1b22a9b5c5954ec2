package registration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/hospital"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/identity"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/cache"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
)

// world is an in-memory database. memTx serializes transactions on its lock
// and restores the snapshot when fn fails.
type world struct {
	mu        sync.Mutex
	tokens    map[string]Token
	staging   map[string]Staging
	users     map[string]identity.User
	hospitals map[string]hospital.Hospital
	nextID    int64
	locked    []string
}

func newWorld() *world {
	return &world{
		tokens:    make(map[string]Token),
		staging:   make(map[string]Staging),
		users:     make(map[string]identity.User),
		hospitals: make(map[string]hospital.Hospital),
	}
}

type snapshot struct {
	tokens    map[string]Token
	staging   map[string]Staging
	users     map[string]identity.User
	hospitals map[string]hospital.Hospital
	nextID    int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (w *world) snapshot() snapshot {
	return snapshot{copyMap(w.tokens), copyMap(w.staging), copyMap(w.users), copyMap(w.hospitals), w.nextID}
}

func (w *world) restore(s snapshot) {
	w.tokens, w.staging, w.users, w.hospitals, w.nextID = s.tokens, s.staging, s.users, s.hospitals, s.nextID
}

type memTx struct{ w *world }

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	snap := t.w.snapshot()
	if err := fn(ctx); err != nil {
		t.w.restore(snap)
		return err
	}
	return nil
}

// -- Repository over world (callers hold the tx lock) --

type memRepo struct{ w *world }

func (r memRepo) LockEmail(_ context.Context, email string) error {
	r.w.locked = append(r.w.locked, email)
	return nil
}

func (r memRepo) PurgeExpired(_ context.Context, cutoff time.Time) error {
	for k, s := range r.w.staging {
		if !s.CreatedAt.After(cutoff) {
			delete(r.w.staging, k)
		}
	}
	for k, t := range r.w.tokens {
		if !t.IsVerified && !t.CreatedAt.After(cutoff) {
			delete(r.w.tokens, k)
		}
	}
	return nil
}

func (r memRepo) LockToken(_ context.Context, email string) (*Token, error) {
	t, ok := r.w.tokens[email]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memRepo) UpsertToken(_ context.Context, email, code string, now time.Time) error {
	r.w.tokens[email] = Token{Email: email, Code: code, CreatedAt: now}
	return nil
}

func (r memRepo) MarkVerified(_ context.Context, email string, now time.Time) error {
	t := r.w.tokens[email]
	t.IsVerified = true
	t.VerifiedAt = &now
	r.w.tokens[email] = t
	return nil
}

func (r memRepo) DeleteToken(_ context.Context, email string) error {
	delete(r.w.tokens, email)
	return nil
}

func (r memRepo) LockStaging(_ context.Context, email string) (*Staging, error) {
	s, ok := r.w.staging[email]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r memRepo) UpsertStaging(_ context.Context, s *Staging) error {
	r.w.staging[s.Email] = *s
	return nil
}

func (r memRepo) DeleteStaging(_ context.Context, email string) error {
	delete(r.w.staging, email)
	return nil
}

type memUsers struct{ w *world }

func (u memUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := u.w.users[email]
	return ok, nil
}

func (u memUsers) Create(_ context.Context, user *identity.User) error {
	if _, ok := u.w.users[user.Email]; ok {
		return identity.ErrEmailRegistered
	}
	u.w.nextID++
	user.ID = u.w.nextID
	u.w.users[user.Email] = *user
	return nil
}

type memHospitals struct{ w *world }

func (h memHospitals) EnsureByName(_ context.Context, name string) (*hospital.Hospital, error) {
	key := hospital.Slugify(name)
	if existing, ok := h.w.hospitals[key]; ok {
		return &existing, nil
	}
	created := hospital.Hospital{ID: int64(len(h.w.hospitals) + 1), Name: name, Slug: key}
	h.w.hospitals[key] = created
	return &created, nil
}

type fakeIssuer struct{}

func (fakeIssuer) IssueFor(u *identity.User) (*identity.TokenResponse, error) {
	return &identity.TokenResponse{
		AccessToken: fmt.Sprintf("token-%d", u.ID),
		TokenType:   "bearer",
		UserID:      u.ID,
		Role:        u.Role,
		Email:       u.Email,
	}, nil
}

type fixture struct {
	svc    *Service
	w      *world
	sender *notification.MockEmailSender
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := newWorld()
	f := &fixture{w: w, sender: &notification.MockEmailSender{FailError: "smtp down"}}
	f.clock = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	f.svc = NewService(
		memRepo{w}, memUsers{w}, memHospitals{w}, fakeIssuer{}, memTx{w},
		cache.NewMemoryLimiter(3, 15*time.Minute),
		f.sender, notification.NewTemplateEngine(),
		Config{CodeTTL: 24 * time.Hour, Cooldown: 15 * time.Minute},
		zerolog.Nop(),
	)
	f.svc.now = func() time.Time { return f.clock }
	codes := 0
	f.svc.newCode = func() (string, error) {
		codes++
		return fmt.Sprintf("%06d", 123455+codes), nil
	}
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func signUpRequest(email string) SignUpRequest {
	return SignUpRequest{
		Email:        email,
		Password:     "Secret#123",
		FirstName:    "Thoko",
		LastName:     "Mwale",
		Role:         "nurse",
		HospitalName: "Zomba Central Hospital",
	}
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected apperr, got %v", err)
	assert.Equal(t, code, ae.Code)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.NotEqual(t, byte('0'), code[0])
	}
}

func TestSignUp_StagesAndSendsCode(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.SignUp(context.Background(), signUpRequest(" Nurse@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "Verification code sent to your email", resp.Message)
	assert.Equal(t, "nurse@example.com", resp.Email)

	require.Contains(t, f.w.staging, "nurse@example.com")
	tok := f.w.tokens["nurse@example.com"]
	assert.Equal(t, "123456", tok.Code)
	assert.False(t, tok.IsVerified)
	assert.True(t, auth.CheckPassword(f.w.staging["nurse@example.com"].PasswordHash, "Secret#123"))

	msg, ok := f.sender.Last()
	require.True(t, ok)
	assert.Equal(t, "nurse@example.com", msg.To)
	assert.Equal(t, "Your Verification Code for Healthcare Access", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "123456")
	assert.Contains(t, msg.TextBody, "123456")
}

func TestSignUp_ExistingUser(t *testing.T) {
	f := newFixture(t)
	f.w.users["nurse@example.com"] = identity.User{ID: 9, Email: "nurse@example.com"}

	_, err := f.svc.SignUp(context.Background(), signUpRequest("nurse@example.com"))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Empty(t, f.sender.Calls())
}

func TestSignUp_ResendCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	f.advance(5 * time.Minute)
	_, err = f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	requireStatus(t, err, http.StatusTooManyRequests)
	assert.Contains(t, err.Error(), "15 minutes")
	assert.Equal(t, "123456", f.w.tokens["nurse@example.com"].Code, "code must not change inside the cooldown")

	f.advance(11 * time.Minute)
	_, err = f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "123457", f.w.tokens["nurse@example.com"].Code)
}

func TestSignUp_RejectsHospitalNameWithoutSlug(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"###", "  ", "---"} {
		req := signUpRequest("nurse@example.com")
		req.HospitalName = name

		_, err := f.svc.SignUp(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidHospital, name)
		requireStatus(t, err, http.StatusBadRequest)
	}
	assert.Empty(t, f.w.staging)
	assert.Empty(t, f.w.tokens)
	assert.Empty(t, f.sender.Calls())
}

func TestSignUp_LocksEmailInsideTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, signUpRequest("Nurse@Example.com"))
	require.NoError(t, err)
	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	require.NoError(t, err)

	assert.Equal(t, []string{"nurse@example.com", "nurse@example.com"}, f.w.locked)
}

func TestSignUp_ConcurrentFirstSignUpsKeepOneCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireStatus(t, err, http.StatusTooManyRequests)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "123456", f.w.tokens["nurse@example.com"].Code)
	assert.Len(t, f.sender.Calls(), 1)
}

func TestSignUp_SendFailureKeepsStaging(t *testing.T) {
	f := newFixture(t)
	f.sender.ShouldFail = true

	_, err := f.svc.SignUp(context.Background(), signUpRequest("nurse@example.com"))
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, f.w.staging, "nurse@example.com")
	assert.Contains(t, f.w.tokens, "nurse@example.com")
}

func TestVerifyEmail_CreatesExactlyOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	resp, err := f.svc.VerifyEmail(ctx, VerifyRequest{Email: "NURSE@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "nurse", resp.Role)

	assert.Len(t, f.w.users, 1)
	assert.Empty(t, f.w.staging)
	tok := f.w.tokens["nurse@example.com"]
	assert.True(t, tok.IsVerified)
	require.NotNil(t, tok.VerifiedAt)

	u := f.w.users["nurse@example.com"]
	require.NotNil(t, u.HospitalID)
	assert.Equal(t, "Thoko", u.FirstName)
	assert.Contains(t, f.w.hospitals, hospital.Slugify("Zomba Central Hospital"))

	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifyEmail_WrongCodeLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	before := f.w.snapshot()
	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "000000"})
	assert.ErrorIs(t, err, ErrInvalidCode)

	assert.Equal(t, before.tokens, f.w.tokens)
	assert.Equal(t, before.staging, f.w.staging)
	assert.Empty(t, f.w.users)
}

func TestVerifyEmail_AttemptLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "000000"})
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Empty(t, f.w.users)
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Empty(t, f.w.tokens)
	assert.Empty(t, f.w.staging)
}

func TestVerifyEmail_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyEmail(context.Background(), VerifyRequest{Email: "ghost@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyEmail_MissingStaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)
	delete(f.w.staging, "nurse@example.com")

	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyEmail_DuplicateUserCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	// a racing request created the account between sign-up and verify
	f.w.users["nurse@example.com"] = identity.User{ID: 77, Email: "nurse@example.com"}

	_, err = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
	assert.ErrorIs(t, err, identity.ErrEmailRegistered)
	assert.Empty(t, f.w.staging)
	assert.Empty(t, f.w.tokens)
	assert.Len(t, f.w.users, 1)
}

func TestVerifyEmail_ConcurrentVerificationsCreateOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, signUpRequest("nurse@example.com"))
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyEmail(ctx, VerifyRequest{Email: "nurse@example.com", Code: "123456"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyVerified), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.w.users, 1)
	assert.Empty(t, f.w.staging)
}

func TestCooldownMessageUsesConfig(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.Cooldown = 5 * time.Minute
	err := f.svc.cooldownError()
	assert.True(t, strings.Contains(err.Error(), "5 minutes"))
}
