package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	googleCertsURL   = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	issuerPrefix     = "https://securetoken.google.com/"
	defaultCertsTTL  = time.Hour
	certFetchTimeout = 10 * time.Second
	// Unknown kids trigger at most one extra fetch per interval.
	kidRefetchInterval = time.Minute
)

type firebaseClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks Firebase ID tokens against Google's signing certificates.
type Verifier struct {
	projectID string
	rest      *resty.Client
	certsURL  string
	now       func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
	fetched time.Time
}

// NewVerifier returns a verifier for tokens issued to projectID.
func NewVerifier(projectID string, rest *resty.Client) (*Verifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("firebase project id must not be empty")
	}
	if rest == nil {
		rest = resty.New()
	}
	return &Verifier{
		projectID: projectID,
		rest:      rest,
		certsURL:  googleCertsURL,
		now:       time.Now,
	}, nil
}

// Verify parses and validates raw, returning the user it was issued for.
func (v *Verifier) Verify(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims firebaseClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &User{UID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil || !v.now().Before(v.expires) {
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	key, ok := v.keys[kid]
	if !ok && v.now().Sub(v.fetched) >= kidRefetchInterval {
		// Google rotates keys before the cached set expires.
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
		key, ok = v.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("no certificate for kid %q", kid)
	}
	return key, nil
}

func (v *Verifier) refreshLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, certFetchTimeout)
	defer cancel()

	res, err := v.rest.R().SetContext(ctx).Get(v.certsURL)
	if err != nil {
		return fmt.Errorf("fetch signing certificates: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("fetch signing certificates: status %d", res.StatusCode())
	}

	var certs map[string]string
	if err := json.Unmarshal(res.Body(), &certs); err != nil {
		return fmt.Errorf("decode signing certificates: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("parse certificate %q: %w", kid, err)
		}
		keys[kid] = key
	}

	v.keys = keys
	v.fetched = v.now()
	v.expires = v.fetched.Add(maxAge(res.Header().Get("Cache-Control")))
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultCertsTTL
}
