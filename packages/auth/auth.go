// Package auth implements register/login and the bearer-token guard shared
// by every non-auth endpoint (§5): JWT issuance and verification with
// github.com/golang-jwt/jwt/v5, bcrypt password hashing, and a middleware
// that populates (tenantId, userId, role) on the request context.
//
// The claims shape and Authorization-header extraction are grounded on the
// teacher's internal/app/httpapi JWT validator (its Claims/extractToken
// pair); unlike that validator, which verifies tokens issued by an external
// identity provider, this package both issues and verifies its own tokens.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/service_layer/domain/tenant"
	"github.com/R3E-Network/service_layer/infrastructure/database"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/httputil"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// DefaultTokenTTL is how long an issued token remains valid.
const DefaultTokenTTL = 24 * time.Hour

// TenantRepo is the slice of infrastructure/postgres.TenantRepo auth needs.
type TenantRepo interface {
	Create(ctx context.Context, t tenant.Tenant) error
}

// UserRepo is the slice of infrastructure/postgres.UserRepo auth needs.
type UserRepo interface {
	Create(ctx context.Context, u tenant.User) error
	GetByEmail(ctx context.Context, email string) (*tenant.User, error)
}

// Claims is the JWT payload minted by Service and read back by Verify.
type Claims struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies bearer tokens and backs the register/login
// handlers.
type Service struct {
	tenants  TenantRepo
	users    UserRepo
	secret   []byte
	tokenTTL time.Duration
}

// New constructs a Service. secret is the JWT_SECRET configuration value
// and must be at least 8 characters, per §6.
func New(tenants TenantRepo, users UserRepo, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{tenants: tenants, users: users, secret: []byte(secret), tokenTTL: tokenTTL}
}

// Register creates a new Tenant and its first admin User, then issues a
// token for it.
func (s *Service) Register(ctx context.Context, tenantName, email, password string) (string, error) {
	tenantName = database.SanitizeString(tenantName)
	if tenantName == "" {
		return "", svcerrors.Validation("tenantName", "required")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", svcerrors.Validation("email", "required")
	}
	if err := database.ValidateEmail(email); err != nil {
		return "", svcerrors.Validation("email", "invalid format")
	}
	if len(password) < 8 {
		return "", svcerrors.Validation("password", "must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", svcerrors.Internal("hash password", err)
	}

	t := tenant.Tenant{ID: uuid.NewString(), Name: tenantName, CreatedAt: time.Now()}
	if err := s.tenants.Create(ctx, t); err != nil {
		return "", err
	}

	u := tenant.User{
		ID:           uuid.NewString(),
		TenantID:     t.ID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         tenant.RoleAdmin,
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", err
	}

	return s.issueToken(u)
}

// Login authenticates an existing User by email/password and issues a
// token for its tenant.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if svcerrors.Is(err, svcerrors.CodeNotFound) {
			return "", svcerrors.Unauthorized("invalid email or password")
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", svcerrors.Unauthorized("invalid email or password")
	}
	return s.issueToken(*u)
}

func (s *Service) issueToken(u tenant.User) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: u.TenantID,
		UserID:   u.ID,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", svcerrors.Internal("sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the tenant and
// user it was issued for. It implements packages/pushbus.TokenVerifier.
func (s *Service) Verify(tokenString string) (tenantID, userID string, err error) {
	tenantID, userID, _, err = s.verifyWithClaims(tokenString)
	return tenantID, userID, err
}

// extractToken reads the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Middleware rejects requests without a valid bearer token with AUTH_ERROR
// and otherwise populates (tenantId, userId, role) on the request context,
// per §5's "every non-auth endpoint requires a bearer token" contract.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeAuthError(w, r, svcerrors.Unauthorized("missing bearer token"))
			return
		}
		tenantID, userID, claims, err := s.verifyWithClaims(token)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		ctx := logging.WithTenantID(r.Context(), tenantID)
		ctx = logging.WithUserID(ctx, userID)
		ctx = logging.WithRole(ctx, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) verifyWithClaims(tokenString string) (tenantID, userID string, claims *Claims, err error) {
	claims = &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, svcerrors.Unauthorized("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", nil, svcerrors.InvalidToken(err)
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return "", "", nil, svcerrors.Unauthorized("token missing tenant or user claim")
	}
	return claims.TenantID, claims.UserID, claims, nil
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Unauthorized(err.Error())
	}
	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}
