package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
)

// ContextKey is the type for context keys set by the middleware chain.
type ContextKey string

const (
	// OrganizationIDKey is the context key for the authenticated organization.
	OrganizationIDKey ContextKey = "organization_id"
	// ScopesKey is the context key for the token's permission scopes.
	ScopesKey ContextKey = "scopes"
)

// Permission scopes checked per route group. Tokens carry them in the
// "scope" claim.
const (
	ScopeLedgerRead       = "ledger:read"
	ScopeLedgerWrite      = "ledger:write"
	ScopeLedgerDelete     = "ledger:delete"
	ScopeAccountRead      = "ledger:account:read"
	ScopeAccountWrite     = "ledger:account:write"
	ScopeAccountDelete    = "ledger:account:delete"
	ScopeTxnRead          = "ledger:transaction:read"
	ScopeTxnWrite         = "ledger:transaction:write"
	ScopeTxnDelete        = "ledger:transaction:delete"
	ScopeSettlementRead   = "ledger:account:settlement:read"
	ScopeSettlementWrite  = "ledger:account:settlement:write"
	ScopeSettlementDelete = "ledger:account:settlement:delete"
	ScopeMonitorRead      = "ledger:balance:monitor:read"
	ScopeMonitorWrite     = "ledger:balance:monitor:write"
	ScopeStatementRead    = "ledger:account:statement:read"
	ScopeStatementWrite   = "ledger:account:statement:write"
)

// Claims are the bearer-token claims: the subject is the organization id
// and scope lists granted permissions.
type Claims struct {
	Scopes []string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTService validates (and, for development tooling, signs) bearer tokens.
type JWTService struct {
	secret []byte
}

// NewJWTService creates a JWT service around a shared HMAC secret.
func NewJWTService(secret string) *JWTService {
	return &JWTService{secret: []byte(secret)}
}

// GenerateToken signs a token for the organization with the given scopes.
// Only development tooling calls this; the API never issues tokens.
func (s *JWTService) GenerateToken(organizationID string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   organizationID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "ledgerkit",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Auth validates the bearer token and stores the organization id and scopes
// in the request context. The organization is never defaulted; requests
// without a valid subject are rejected.
func Auth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, apperr.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, r, apperr.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := jwtService.ValidateToken(parts[1])
			if err != nil {
				writeError(w, r, apperr.Unauthorized("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), OrganizationIDKey, claims.Subject)
			ctx = context.WithValue(ctx, ScopesKey, claims.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token lacks the permission.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, _ := r.Context().Value(ScopesKey).([]string)
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, apperr.Forbidden(fmt.Sprintf("token lacks the %s permission", scope)))
		})
	}
}

// GetOrganizationID extracts the authenticated organization from the
// request context.
func GetOrganizationID(ctx context.Context) (string, bool) {
	organizationID, ok := ctx.Value(OrganizationIDKey).(string)
	return organizationID, ok && organizationID != ""
}
