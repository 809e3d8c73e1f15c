package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgauth "github.com/kapehan/kapehan-backend/pkg/auth"
	"github.com/kapehan/kapehan-backend/pkg/auth/session"
	"github.com/kapehan/kapehan-backend/pkg/config"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc, f := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, RegisterInput{
		Email:     " Maria@Example.PH ",
		Password:  "kapehan-secret",
		FirstName: "Maria",
		LastName:  "Santos",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", pair)
	}
	if pair.Role != "customer" {
		t.Fatalf("expected customer role, got %s", pair.Role)
	}

	var user models.User
	if err := f.conn.First(&user, "email = ?", "maria@example.ph").Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.PasswordHash == "kapehan-secret" {
		t.Fatal("password must be hashed")
	}
	if user.Role != enums.UserRoleCustomer || !user.IsActive {
		t.Fatalf("unexpected user %+v", user)
	}

	login, err := svc.Login(ctx, LoginInput{Email: "maria@example.ph", Password: "kapehan-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgauth.ParseAccessToken(f.jwtCfg, login.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enums.UserRoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{Email: "dup@example.ph", Password: "kapehan-secret", FirstName: "A", LastName: "B"}
	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	cases := []RegisterInput{
		{Email: "not-an-email", Password: "kapehan-secret", FirstName: "A", LastName: "B"},
		{Email: "ok@example.ph", Password: "short", FirstName: "A", LastName: "B"},
		{Email: "ok@example.ph", Password: "kapehan-secret", FirstName: "", LastName: "B"},
	}
	for i, input := range cases {
		if _, err := svc.Register(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "juan@example.ph", Password: "kapehan-secret", FirstName: "Juan", LastName: "Cruz"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Login(ctx, LoginInput{Email: "juan@example.ph", Password: "wrong-password"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.ph", Password: "whatever-pass"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	t.Parallel()

	svc, f := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "inactive@example.ph", Password: "kapehan-secret", FirstName: "I", LastName: "N"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.conn.Model(&models.User{}).Where("email = ?", "inactive@example.ph").
		Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.Login(ctx, LoginInput{Email: "inactive@example.ph", Password: "kapehan-secret"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, RegisterInput{Email: "rotate@example.ph", Password: "kapehan-secret", FirstName: "R", LastName: "T"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == pair.AccessToken || refreshed.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate both tokens")
	}

	// The old refresh token is dead after rotation.
	_, err = svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized on replayed refresh, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()

	svc, f := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, RegisterInput{Email: "out@example.ph", Password: "kapehan-secret", FirstName: "O", LastName: "U"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	claims, err := pkgauth.ParseAccessToken(f.jwtCfg, pair.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	if err := svc.Logout(ctx, claims.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

// --- fixtures ---

type testFixture struct {
	conn   *gorm.DB
	jwtCfg config.JWTConfig
}

// fakeSessions is an in-memory stand-in for the Redis session manager.
type fakeSessions struct {
	mu     sync.Mutex
	tokens map[string]string
	seq    int
}

func (f *fakeSessions) Generate(ctx context.Context, accessID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	token := uuid.NewString()
	f.tokens[accessID] = token
	return token, nil
}

func (f *fakeSessions) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tokens[oldAccessID]
	if !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(f.tokens, oldAccessID)
	newID := session.NewAccessID()
	newToken := uuid.NewString()
	f.tokens[newID] = newToken
	return newID, newToken, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, accessID)
	return nil
}

func newTestService(t *testing.T) (Service, *testFixture) {
	t.Helper()
	conn := newTestDB(t)
	jwtCfg := config.JWTConfig{
		Secret:                  "test-secret",
		Issuer:                  "kapehan-test",
		ExpirationMinutes:       15,
		RefreshTokenTTLMinutes:  60 * 24,
	}
	passwordCfg := config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	svc, err := NewService(
		NewRepository(conn),
		db.NewWithConn(conn),
		&fakeSessions{tokens: map[string]string{}},
		jwtCfg,
		passwordCfg,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, &testFixture{conn: conn, jwtCfg: jwtCfg}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	return conn
}
