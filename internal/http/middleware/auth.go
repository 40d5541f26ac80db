package middleware

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightkind/clinic-platform/internal/auth"
)

// AuthConfig holds the hosted identity provider settings used for JWT
// validation.
type AuthConfig struct {
	IssuerURL string // e.g. https://accounts.example-idp.com/tenant
	Audience  string // expected aud claim

	// UserLookup optionally resolves the caller's directory record so role
	// changes take effect without re-issuing tokens. When nil, the role claim
	// in the token is trusted.
	UserLookup func(userID string) (auth.Identity, bool)
}

// IdentityClaims are the claims the identity provider issues for staff.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// jwksCache caches the provider's signing keys.
type jwksCache struct {
	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

var jwksCaches = make(map[string]*jwksCache)
var jwksCachesMu sync.RWMutex

// ImpersonateHeader lets a Super Admin act as another user. The impersonated
// identity keeps a record of the real actor for auditing.
const ImpersonateHeader = "X-Impersonate-User"

// Authenticated validates bearer tokens against the identity provider's JWKS
// and injects the caller identity into the request context.
func Authenticated(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.IssuerURL == "" {
		// Reject everything when auth is not configured rather than failing open.
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"auth not configured"}`, http.StatusUnauthorized)
			})
		}
	}

	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	jwksURL := issuer + "/.well-known/jwks.json"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			token, _, err := jwt.NewParser().ParseUnverified(tokenString, &IdentityClaims{})
			if err != nil {
				http.Error(w, `{"error":"invalid token format"}`, http.StatusUnauthorized)
				return
			}
			kid, ok := token.Header["kid"].(string)
			if !ok {
				http.Error(w, `{"error":"missing key id in token"}`, http.StatusUnauthorized)
				return
			}

			pubKey, err := getPublicKey(jwksURL, kid)
			if err != nil {
				http.Error(w, fmt.Sprintf(`{"error":"failed to get public key: %s"}`, err.Error()), http.StatusUnauthorized)
				return
			}

			claims := &IdentityClaims{}
			opts := []jwt.ParserOption{jwt.WithIssuer(issuer), jwt.WithExpirationRequired()}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}
			validated, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return pubKey, nil
			}, opts...)
			if err != nil || !validated.Valid {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			identity := auth.Identity{
				UserID: claims.Subject,
				Name:   claims.Name,
				Email:  claims.Email,
				Role:   auth.ParseRole(claims.Role),
			}
			if cfg.UserLookup != nil {
				if resolved, ok := cfg.UserLookup(identity.UserID); ok {
					identity = resolved
				}
			}

			if target := r.Header.Get(ImpersonateHeader); target != "" {
				if !identity.Role.CanImpersonate() {
					http.Error(w, `{"error":"impersonation not permitted"}`, http.StatusForbidden)
					return
				}
				resolved := auth.Identity{UserID: target, Role: auth.RoleStaff}
				if cfg.UserLookup != nil {
					if looked, ok := cfg.UserLookup(target); ok {
						resolved = looked
					}
				}
				identity = auth.Impersonate(identity, resolved)
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// getPublicKey fetches (and caches) the RSA public key for the given kid.
func getPublicKey(jwksURL, kid string) (*rsa.PublicKey, error) {
	jwksCachesMu.Lock()
	cache, ok := jwksCaches[jwksURL]
	if !ok {
		cache = &jwksCache{}
		jwksCaches[jwksURL] = cache
	}
	jwksCachesMu.Unlock()

	cache.mu.RLock()
	if time.Now().Before(cache.expires) {
		if key, ok := cache.keys[kid]; ok {
			cache.mu.RUnlock()
			return key, nil
		}
	}
	cache.mu.RUnlock()

	cache.mu.Lock()
	defer cache.mu.Unlock()

	// Re-check after acquiring the write lock.
	if time.Now().Before(cache.expires) {
		if key, ok := cache.keys[kid]; ok {
			return key, nil
		}
	}

	resp, err := http.Get(jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	cache.keys = keys
	cache.expires = time.Now().Add(1 * time.Hour)

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in jwks", kid)
	}
	return key, nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := 0
	for _, b := range eBytes {
		exp = exp<<8 + int(b)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: exp,
	}, nil
}
