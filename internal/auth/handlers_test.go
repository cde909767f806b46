package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

func passThrough(c *fiber.Ctx) error { return c.Next() }

func TestAuthHandlersRegisterLoginMe(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	updatedAt := time.Now()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("alice@x.com", "alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Alice", "alice@x.com", "alice", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(createdAt, updatedAt))

	svc := NewService("test-secret", time.Hour, mock)
	app := newTestApp()
	RegisterRoutes(app.Group("/auth"), svc, passThrough, JWTMiddleware(svc))

	registerBody, _ := json.Marshal(RegisterRequest{FullName: "Alice", Email: "alice@x.com", Username: "alice", Password: "secret1"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(registerBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %v", err)
	}

	passwordBytes, _ := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, full_name, email, username, password_hash, created_at, updated_at`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("user-1", "Alice", "alice@x.com", "alice", string(passwordBytes), createdAt, updatedAt))

	loginBody, _ := json.Marshal(LoginRequest{EmailOrUsername: "alice", Password: "secret1"})
	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %v", err)
	}
	var login LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil || login.Token == "" {
		t.Fatalf("expected token in login response: %v", err)
	}

	mock.ExpectQuery(`SELECT id, full_name, email, username, password_hash, created_at, updated_at`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("user-1", "Alice", "alice@x.com", "alice", string(passwordBytes), createdAt, updatedAt))

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %v", err)
	}
	var me map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&me)
	if _, leaked := me["passwordHash"]; leaked || me["username"] != "alice" {
		t.Fatalf("unexpected me payload: %v", me)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthRegisterValidationStatus(t *testing.T) {
	app := newTestApp()
	RegisterRoutes(app.Group("/auth"), NewService("test-secret", time.Hour, nil), passThrough, passThrough)

	body := []byte(`{"fullName":"A","email":"a@x.com","username":"a","password":"123"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestAuthInvalidPayload(t *testing.T) {
	app := newTestApp()
	RegisterRoutes(app.Group("/auth"), NewService("test-secret", time.Hour, nil), passThrough, passThrough)

	for _, path := range []string{"/auth/register", "/auth/login"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(`{`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil || resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected bad request", path)
		}
	}
}

func TestAuthLoginStatuses(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, full_name, email, username, password_hash`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(userColumns))
	mock.ExpectQuery(`SELECT id, full_name, email, username, password_hash`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("user-1", "Alice", "alice@x.com", "alice", string(hash), time.Now(), time.Now()))

	app := newTestApp()
	RegisterRoutes(app.Group("/auth"), NewService("test-secret", time.Hour, mock), passThrough, passThrough)

	cases := []struct {
		body   string
		status int
	}{
		{`{"emailOrUsername":"ghost","password":"secret1"}`, http.StatusNotFound},
		{`{"emailOrUsername":"alice","password":"wrong"}`, http.StatusUnauthorized},
		{`{"emailOrUsername":"","password":""}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(tc.body)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil || resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %v", tc.body, tc.status, resp.StatusCode)
		}
	}
}
