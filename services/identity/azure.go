// Package identitysvc verifies third-party sign-in credentials. Verification
// is always cryptographic; decoding a token without checking its signature
// is not an option here.
package identitysvc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/user"
)

const keysMaxAge = 24 * time.Hour

type azureVerifier struct {
	tenantID       string
	clientID       string
	allowedDomains []string
	client         *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // by kid
	fetchedAt time.Time
}

var _ user.IdentityVerifier = (*azureVerifier)(nil)

func NewAzureVerifier(conf *core.Config) *azureVerifier {
	return &azureVerifier{
		tenantID:       conf.Azure.TenantID,
		clientID:       conf.Azure.ClientID,
		allowedDomains: conf.Azure.AllowedDomains,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks the ID token's RS256 signature against the tenant's
// published signing keys and returns the asserted Identity.
func (v *azureVerifier) Verify(ctx context.Context, rawToken string) (user.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		return v.signingKey(ctx, kid)
	})
	if err != nil || !token.Valid {
		return user.Identity{}, user.ErrInvalidIdentityToken
	}

	if !claims.VerifyAudience(v.clientID, true) {
		return user.Identity{}, user.ErrInvalidIdentityToken
	}
	if iss, _ := claims["iss"].(string); !strings.Contains(iss, v.tenantID) {
		return user.Identity{}, user.ErrInvalidIdentityToken
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["preferred_username"].(string)
	}
	email = core.CleanString(email, true /* lower */)
	if email == "" || !v.domainAllowed(email) {
		return user.Identity{}, user.ErrInvalidIdentityToken
	}

	first, _ := claims["given_name"].(string)
	last, _ := claims["family_name"].(string)
	if first == "" && last == "" {
		// some tenants only assert the display name
		name, _ := claims["name"].(string)
		if parts := strings.SplitN(name, " ", 2); len(parts) == 2 {
			first, last = parts[0], parts[1]
		} else {
			first = name
		}
	}

	return user.Identity{Email: email, FirstName: first, LastName: last}, nil
}

func (v *azureVerifier) domainAllowed(email string) bool {
	if len(v.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, allowed := range v.allowedDomains {
		if domain == allowed {
			return true
		}
	}
	return false
}

func (v *azureVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < keysMaxAge
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok = v.keys[kid]; ok {
		return key, nil
	}
	return nil, errors.Errorf("no signing key for kid %q", kid)
}

func (v *azureVerifier) refreshKeys(ctx context.Context) error {
	url := fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", v.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building keys request")
	}
	res, err := v.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetching signing keys")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("fetching signing keys: status %d", res.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err = json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return errors.Wrap(err, "decoding signing keys")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := parseRSAKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}

func parseRSAKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding modulus")
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding exponent")
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
