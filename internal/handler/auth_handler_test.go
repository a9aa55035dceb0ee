package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn          func(ctx context.Context, name, password string) (*model.Account, *model.Session, error)
	loginFn             func(ctx context.Context, name, password string) (*model.Account, *model.Session, error)
	logoutFn            func(ctx context.Context, sessionID string) error
	getCurrentAccountFn func(ctx context.Context, sessionID string) (*model.Account, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) Register(ctx context.Context, name, password string) (*model.Account, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, password)
	}
	return nil, nil, model.NewMissingInputError("name")
}

func (m *mockAuthService) Login(ctx context.Context, name, password string) (*model.Account, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, name, password)
	}
	return nil, nil, model.NewAccountNotFoundError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if m.getCurrentAccountFn != nil {
		return m.getCurrentAccountFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockSessionDropper struct {
	dropped []string
}

func (m *mockSessionDropper) DropSession(sessionID string) {
	m.dropped = append(m.dropped, sessionID)
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		CookieSecure:  false,
		SessionMaxAge: 3600,
	}
}

// --- テスト ---

func TestAuthHandler_Register_SetsSessionCookie(t *testing.T) {
	service := &mockAuthService{
		registerFn: func(ctx context.Context, name, password string) (*model.Account, *model.Session, error) {
			return &model.Account{ID: "acc-1", Name: name, Balance: 500},
				&model.Session{ID: "sess-1", AccountID: "acc-1", ExpiresAt: time.Now().Add(time.Hour)},
				nil
		},
	}
	h := NewAuthHandler(service, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"name":"researcher1","password":"secret-password"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var body accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Name != "researcher1" || body.Balance != 500 {
		t.Errorf("body = %+v", body)
	}

	cookie := findCookie(resp.Cookies(), "session_id")
	if cookie == nil || cookie.Value != "sess-1" {
		t.Fatal("session cookie should be set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestAuthHandler_Register_DuplicateName_Returns409(t *testing.T) {
	service := &mockAuthService{
		registerFn: func(ctx context.Context, name, password string) (*model.Account, *model.Session, error) {
			return nil, nil, model.NewDuplicateAccountError(name)
		},
	}
	h := NewAuthHandler(service, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"name":"taken","password":"secret-password"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

func TestAuthHandler_Register_InvalidBody_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Login_WrongCredentials_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"name":"researcher1","password":"wrong"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeAccountNotFound {
		t.Errorf("code = %q, want ACCOUNT_NOT_FOUND", body.Code)
	}
}

func TestAuthHandler_Logout_ClearsCookieAndDropsSessionState(t *testing.T) {
	var loggedOut string
	service := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	dropper := &mockSessionDropper{}
	h := NewAuthHandler(service, dropper, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if loggedOut != "sess-1" {
		t.Errorf("logged out session = %q, want sess-1", loggedOut)
	}
	if len(dropper.dropped) != 1 || dropper.dropped[0] != "sess-1" {
		t.Errorf("dropped sessions = %v, want [sess-1]", dropper.dropped)
	}

	cookie := findCookie(resp.Cookies(), "session_id")
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("session cookie should be cleared")
	}
}

func TestAuthHandler_Me_ReturnsAccountWithoutPasswordHash(t *testing.T) {
	service := &mockAuthService{
		getCurrentAccountFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
			return &model.Account{
				ID:           "acc-1",
				Name:         "researcher1",
				PasswordHash: "bcrypt-hash-must-not-leak",
				Balance:      450,
				IsAdmin:      true,
			}, nil
		},
	}
	h := NewAuthHandler(service, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	raw := w.Body.String()
	if strings.Contains(raw, "bcrypt-hash-must-not-leak") {
		t.Error("password hash must not appear in response")
	}

	var body accountResponse
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.ID != "acc-1" || body.Balance != 450 || !body.IsAdmin {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_NoCookie_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// findCookie は名前でCookieを検索するテストヘルパー。
func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
