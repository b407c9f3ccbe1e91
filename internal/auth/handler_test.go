package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk/internal/auth"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/shared"
	_ "github.com/coachdesk/coachdesk/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

// authFixture mounts the auth routes behind a session-loading middleware the
// same way the application router does, and keeps the most recent session
// around so tests can inspect it.
type authFixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	lastSess *shared.Session
}

func newAuthFixture(t *testing.T, repo auth.Repository) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(client, "test_session", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), sessionManager, shared.NewCSRFManager(false))

	f := &authFixture{sessions: sessionManager}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessionManager.Load(req.Context(), req)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			f.lastSess = sess
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/auth", handler.MountRoutes)
	f.router = r
	return f
}

func (f *authFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func testUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		ID:           7,
		Email:        "leader@test.local",
		Name:         "Test Leader",
		PasswordHash: string(hashed),
		Role:         rbac.RoleTeamLeader,
		IsActive:     true,
	}
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: testUser(t, "correct-password")}
	f := newAuthFixture(t, repo)

	res := f.do(http.MethodPost, "/api/auth/login", `{"email":"leader@test.local","password":"correct-password"}`)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if f.lastSess == nil || !f.lastSess.Authenticated() || f.lastSess.UserID() != 7 {
		t.Fatalf("expected session bound to user 7")
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected session registered in repository")
	}

	var payload struct {
		User struct {
			Email       string `json:"email"`
			Role        string `json:"role"`
			DisplayRole string `json:"displayRole"`
		} `json:"user"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.User.Role != "TEAM_LEADER" {
		t.Fatalf("expected TEAM_LEADER role, got %s", payload.User.Role)
	}
	if payload.User.DisplayRole != "Team Leader" {
		t.Fatalf("expected display role Team Leader, got %s", payload.User.DisplayRole)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{user: testUser(t, "correct-password")})

	res := f.do(http.MethodPost, "/api/auth/login", `{"email":"leader@test.local","password":"wrong-password"}`)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if f.lastSess.Authenticated() {
		t.Fatalf("expected session to stay anonymous")
	}
	if !strings.Contains(res.Body.String(), "Invalid credentials") {
		t.Fatalf("expected generic credential error, got %s", res.Body.String())
	}
}

func TestLoginInactiveUser(t *testing.T) {
	user := testUser(t, "correct-password")
	user.IsActive = false
	f := newAuthFixture(t, &stubRepo{user: user})

	res := f.do(http.MethodPost, "/api/auth/login", `{"email":"leader@test.local","password":"correct-password"}`)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", res.Code)
	}
}

func TestLoginValidationErrors(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{})

	res := f.do(http.MethodPost, "/api/auth/login", `{"email":"not-an-email","password":"short"}`)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var payload struct {
		Error  string   `json:"error"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Issues) != 2 {
		t.Fatalf("expected two validation issues, got %v", payload.Issues)
	}
}

func TestLoginMalformedBody(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{})

	res := f.do(http.MethodPost, "/api/auth/login", `{"email":`)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", res.Code)
	}
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{})

	res := f.do(http.MethodGet, "/api/auth/me", "")

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous session, got %d", res.Code)
	}
}

func TestCSRFEndpointIssuesFreshTokens(t *testing.T) {
	f := newAuthFixture(t, &stubRepo{})

	issue := func() (string, []*http.Cookie) {
		res := f.do(http.MethodGet, "/api/auth/csrf", "")
		if res.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.Code)
		}
		var payload struct {
			CSRFToken string `json:"csrfToken"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return payload.CSRFToken, res.Result().Cookies()
	}

	tokenA, cookiesA := issue()
	tokenB, _ := issue()

	if tokenA == "" || tokenA == tokenB {
		t.Fatalf("expected distinct non-empty tokens")
	}
	var cookieToken string
	for _, c := range cookiesA {
		if c.Name == shared.CSRFCookie {
			cookieToken = c.Value
		}
	}
	if cookieToken != tokenA {
		t.Fatalf("expected cookie to carry the issued token")
	}
}
