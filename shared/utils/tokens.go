package utils

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	keySetTTL     = 24 * time.Hour
	minKeyRefresh = time.Minute

	// DefaultTenantClaim is the Cognito custom attribute carrying the tenant id
	DefaultTenantClaim = "custom:tenant_id"
)

// ErrUnknownSigningKey is returned when a token names a kid the key set does not publish
var ErrUnknownSigningKey = errors.New("unknown signing key")

// TenantClaims is the identity carried by a verified bearer token.
// TenantID is empty when the token does not include the tenant claim.
type TenantClaims struct {
	Subject  string
	TenantID string
	Role     string
	TokenUse string
}

// CognitoIssuer returns the token issuer of a Cognito user pool
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// CognitoJWKSURL returns the key set URL of a Cognito user pool
func CognitoJWKSURL(region, userPoolID string) string {
	return CognitoIssuer(region, userPoolID) + "/.well-known/jwks.json"
}

// TokenVerifier checks RS256 tokens against a JWKS key set and extracts the tenant identity
type TokenVerifier struct {
	keys        *keySet
	issuer      string
	tenantClaim string
}

// NewTokenVerifier creates a verifier. An empty issuer skips the iss check;
// an empty tenantClaim uses DefaultTenantClaim.
func NewTokenVerifier(jwksURL, issuer, tenantClaim string, client *http.Client) *TokenVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if tenantClaim == "" {
		tenantClaim = DefaultTenantClaim
	}
	return &TokenVerifier{
		keys:        &keySet{url: jwksURL, client: client, keys: map[string]*rsa.PublicKey{}, now: time.Now},
		issuer:      issuer,
		tenantClaim: tenantClaim,
	}
}

// TenantClaim names the claim the verifier reads the tenant from
func (v *TokenVerifier) TenantClaim() string {
	return v.tenantClaim
}

// Verify validates signature, expiry and issuer and returns the token's identity
func (v *TokenVerifier) Verify(tokenString string) (*TenantClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, v.signingKey, opts...); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	identity := &TenantClaims{
		Subject:  stringClaim(claims, "sub"),
		TenantID: stringClaim(claims, v.tenantClaim),
		Role:     stringClaim(claims, "custom:role"),
		TokenUse: stringClaim(claims, "token_use"),
	}
	if identity.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return identity, nil
}

func (v *TokenVerifier) signingKey(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("kid not found in token header")
	}
	return v.keys.key(kid)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// keySet caches the RSA keys published at a JWKS endpoint
type keySet struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// key returns the key for kid, refreshing the set when it is stale or the kid is new.
// A cached key is still served when the endpoint cannot be reached.
func (s *keySet) key(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	stale := s.now().Sub(s.fetched) > keySetTTL
	s.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}

	if err := s.refresh(); err != nil {
		if ok {
			return key, nil
		}
		return nil, err
	}

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: kid %s", ErrUnknownSigningKey, kid)
	}
	return key, nil
}

// refresh refetches the key set, at most once per minKeyRefresh
func (s *keySet) refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetched.IsZero() && s.now().Sub(s.fetched) < minKeyRefresh {
		return nil
	}

	resp, err := s.client.Get(s.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	s.keys = keys
	s.fetched = s.now()
	return nil
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("unsupported exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
