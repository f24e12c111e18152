package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

const (
	tenantIDKey = "tenant_id"
	userIDKey   = "user_id"
	roleKey     = "role"

	tenantCacheTTL = time.Hour
)

// tokenVerifier checks a bearer token and returns the identity it carries
type tokenVerifier interface {
	Verify(tokenString string) (*utils.TenantClaims, error)
	TenantClaim() string
}

// userDirectory looks up user attributes when the token does not carry them
type userDirectory interface {
	AdminGetUser(input *cognitoidentityprovider.AdminGetUserInput) (*cognitoidentityprovider.AdminGetUserOutput, error)
}

// AuthMiddleware validates bearer tokens and scopes every request to one tenant
type AuthMiddleware struct {
	verifier       tokenVerifier
	directory      userDirectory
	userPoolID     string
	circuitBreaker *utils.CircuitBreaker
	log            *logrus.Entry
}

// NewAuthMiddleware creates the middleware for a Cognito user pool
func NewAuthMiddleware(cfg config.AuthConfig, log *logrus.Entry) (*AuthMiddleware, error) {
	jwksURL := cfg.JWKSLocation()
	if jwksURL == "" {
		return nil, fmt.Errorf("auth requires COGNITO_USER_POOL_ID or JWKS_URL")
	}

	var directory userDirectory
	if cfg.UserPoolID != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.Region),
		})
		if err != nil {
			return nil, err
		}
		directory = cognitoidentityprovider.New(sess)
	}

	verifier := utils.NewTokenVerifier(jwksURL, cfg.Issuer(), cfg.TenantClaim, nil)
	return newAuthMiddleware(verifier, directory, cfg.UserPoolID, log), nil
}

func newAuthMiddleware(v tokenVerifier, dir userDirectory, poolID string, log *logrus.Entry) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   v,
		directory:  dir,
		userPoolID: poolID,
		// max 5 failures, 30 second reset
		circuitBreaker: utils.NewCircuitBreaker(5, 30*time.Second),
		log:            log,
	}
}

// RequireAuth middleware validates JWT tokens and sets the tenant context
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		identity, err := am.verifier.Verify(tokenString)
		if err != nil {
			am.log.WithError(err).Debug("rejected token")
			utils.UnauthorizedResponse(c, "Invalid token")
			c.Abort()
			return
		}

		rawTenant := identity.TenantID
		if rawTenant == "" {
			rawTenant, err = am.lookupTenant(identity.Subject)
			if err != nil {
				am.log.WithError(err).WithField("sub", identity.Subject).Warn("tenant lookup failed")
				utils.UnauthorizedResponse(c, "Tenant information not found")
				c.Abort()
				return
			}
		}

		tenantID, err := uuid.Parse(rawTenant)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid tenant in token")
			c.Abort()
			return
		}

		c.Set(userIDKey, identity.Subject)
		c.Set(tenantIDKey, tenantID)
		c.Set(roleKey, identity.Role)
		c.Next()
	}
}

// lookupTenant resolves the tenant of a user from the pool, cached in Redis
func (am *AuthMiddleware) lookupTenant(sub string) (string, error) {
	claim := am.verifier.TenantClaim()
	cacheKey := utils.HashKey("tenant:", sub)
	if cached, err := utils.CacheGet(cacheKey); err == nil && cached != "" {
		return cached, nil
	}
	if am.directory == nil {
		return "", fmt.Errorf("no user directory configured")
	}

	var tenant string
	err := am.circuitBreaker.Call(func() error {
		out, err := am.directory.AdminGetUser(&cognitoidentityprovider.AdminGetUserInput{
			UserPoolId: aws.String(am.userPoolID),
			Username:   aws.String(sub),
		})
		if err != nil {
			return err
		}
		for _, attr := range out.UserAttributes {
			if aws.StringValue(attr.Name) == claim {
				tenant = aws.StringValue(attr.Value)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get user from Cognito: %w", err)
	}
	if tenant == "" {
		return "", fmt.Errorf("user %s has no %s attribute", sub, claim)
	}

	_ = utils.CacheSet(cacheKey, tenant, tenantCacheTTL)
	return tenant, nil
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// TenantID returns the tenant the request was authenticated for
func TenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(tenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// SetTenant scopes a request to a tenant; used by trusted internal callers and tests
func SetTenant(c *gin.Context, tenantID uuid.UUID) {
	c.Set(tenantIDKey, tenantID)
}
