package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/service_layer/domain/tenant"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

type fakeTenants struct {
	created []tenant.Tenant
}

func (f *fakeTenants) Create(ctx context.Context, t tenant.Tenant) error {
	f.created = append(f.created, t)
	return nil
}

type fakeUsers struct {
	byEmail map[string]tenant.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]tenant.User)}
}

func (f *fakeUsers) Create(ctx context.Context, u tenant.User) error {
	if _, exists := f.byEmail[u.Email]; exists {
		return svcerrors.AlreadyExists("user", u.Email)
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*tenant.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, svcerrors.NotFound("user", email)
	}
	return &u, nil
}

func newTestService() (*Service, *fakeTenants, *fakeUsers) {
	tenants := &fakeTenants{}
	users := newFakeUsers()
	return New(tenants, users, "test-secret-at-least-8", time.Hour), tenants, users
}

func TestService_RegisterThenVerify(t *testing.T) {
	svc, tenants, users := newTestService()

	token, err := svc.Register(context.Background(), "Acme", "admin@acme.test", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(tenants.created) != 1 {
		t.Fatalf("expected one tenant created, got %d", len(tenants.created))
	}
	if len(users.byEmail) != 1 {
		t.Fatalf("expected one user created, got %d", len(users.byEmail))
	}

	tenantID, userID, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if tenantID != tenants.created[0].ID {
		t.Fatalf("tenantID = %q, want %q", tenantID, tenants.created[0].ID)
	}
	if userID == "" {
		t.Fatal("expected a non-empty userID")
	}
}

func TestService_RegisterRejectsShortPassword(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Register(context.Background(), "Acme", "a@b.test", "short"); err == nil {
		t.Fatal("expected an error for a short password")
	}
}

func TestService_RegisterRejectsMalformedEmail(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Register(context.Background(), "Acme", "not-an-email", "hunter22"); err == nil {
		t.Fatal("expected an error for a malformed email")
	}
}

func TestService_LoginWithWrongPasswordFails(t *testing.T) {
	svc, _, users := newTestService()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	users.byEmail["u@acme.test"] = tenant.User{ID: "user-1", TenantID: "tenant-1", Email: "u@acme.test", PasswordHash: string(hash), Role: tenant.RoleMember}

	if _, err := svc.Login(context.Background(), "u@acme.test", "wrong-password"); err == nil {
		t.Fatal("expected Login() to fail with a wrong password")
	}
}

func TestService_LoginWithCorrectPasswordSucceeds(t *testing.T) {
	svc, _, users := newTestService()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	users.byEmail["u@acme.test"] = tenant.User{ID: "user-1", TenantID: "tenant-1", Email: "u@acme.test", PasswordHash: string(hash), Role: tenant.RoleMember}

	token, err := svc.Login(context.Background(), "u@acme.test", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	tenantID, userID, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if tenantID != "tenant-1" || userID != "user-1" {
		t.Fatalf("got tenantID=%q userID=%q, want tenant-1/user-1", tenantID, userID)
	}
}

func TestService_MiddlewareRejectsMissingToken(t *testing.T) {
	svc, _, _ := newTestService()
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be reached without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestService_MiddlewarePopulatesContext(t *testing.T) {
	svc, tenants, _ := newTestService()
	token, err := svc.Register(context.Background(), "Acme", "admin@acme.test", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var gotTenant, gotUser, gotRole string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = logging.GetTenantID(r.Context())
		gotUser = logging.GetUserID(r.Context())
		gotRole = logging.GetRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if gotTenant != tenants.created[0].ID {
		t.Fatalf("tenantID in context = %q, want %q", gotTenant, tenants.created[0].ID)
	}
	if gotUser == "" {
		t.Fatal("expected a non-empty userID in context")
	}
	if gotRole != string(tenant.RoleAdmin) {
		t.Fatalf("role in context = %q, want admin", gotRole)
	}
}
