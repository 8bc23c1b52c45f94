package auth

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
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

type fakeRepo struct {
	employees map[string]Employee
}

func (f *fakeRepo) FindByEmail(ctx context.Context, email string) (Employee, error) {
	employee, ok := f.employees[email]
	if !ok {
		return Employee{}, shared.ErrNotFound
	}
	return employee, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens := shared.NewTokenManager(client, "test-secret", time.Hour)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeRepo{employees: map[string]Employee{
		"ana@almacen.mx": {ID: 7, Name: "Ana", Email: "ana@almacen.mx", Role: "almacenista", PasswordHash: string(hash), IsActive: true},
	}}
	return NewService(repo, tokens), repo
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, employee, err := svc.Login(ctx, "ana@almacen.mx", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, int64(7), employee.ID)

	actor, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), actor.ID)
	require.Equal(t, "almacenista", actor.Role)
}

func TestLoginReportsSessionLifetime(t *testing.T) {
	svc, _ := newTestService(t)
	require.Equal(t, time.Hour, svc.SessionTTL())

	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	body := strings.NewReader(`{"email":"ana@almacen.mx","password":"correct-horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ExpiresIn int64 `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Login(context.Background(), "ana@almacen.mx", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveEmployee(t *testing.T) {
	svc, repo := newTestService(t)
	employee := repo.employees["ana@almacen.mx"]
	employee.IsActive = false
	repo.employees["ana@almacen.mx"] = employee

	_, _, err := svc.Login(context.Background(), "ana@almacen.mx", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "ana@almacen.mx", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestMiddlewarePutsActorInContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "ana@almacen.mx", "correct-horse")
	require.NoError(t, err)

	var captured shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = shared.ActorFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Middleware(svc)(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), captured.ID)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc, _ := newTestService(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	Middleware(svc)(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
