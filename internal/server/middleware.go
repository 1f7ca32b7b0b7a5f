package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sufrahq/sufra/pkg/tenantctx"
)

const bearerPrefix = "Bearer "

type staffClaims struct {
	jwtlib.RegisteredClaims
	TenantID int64  `json:"tenant_id"`
	BranchID int64  `json:"branch_id"`
	Role     string `json:"role,omitempty"`
}

// StaffAuthRequired authenticates back-office requests with the POS
// staff token and injects the tenant/branch scope into the request
// context. Every downstream query is scoped by it.
func (s *Server) StaffAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(s.cfg.AuthJWTSecret) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := &staffClaims{}
		parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
			if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(s.cfg.AuthJWTSecret), nil
		}, jwtlib.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if claims.TenantID == 0 || claims.BranchID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		scope := tenantctx.Scope{
			TenantID: snowflake.ID(claims.TenantID),
			BranchID: snowflake.ID(claims.BranchID),
			User:     strings.TrimSpace(claims.Subject),
		}
		c.Request = c.Request.WithContext(tenantctx.WithScope(c.Request.Context(), scope))
		c.Next()
	}
}

// SignStaffToken issues a staff token for the given scope. Exposed for
// provisioning tooling and tests; the POS frontend brings its own.
func SignStaffToken(secret string, tenantID, branchID int64, user string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		BranchID: branchID,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
}
