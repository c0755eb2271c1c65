package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/restful-users/apiserver/config"
	"github.com/restful-users/apiserver/internal/apierr"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = 24 * time.Hour
	RoleUser        = "USER"
	RoleAdmin       = "ADMIN"
	authRealm       = `Basic realm="users"`
)

// Principal is the authenticated caller.
type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

type account struct {
	passwordHash []byte
	roles        []string
}

type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator accepts HTTP Basic credentials for the configured accounts
// and Bearer tokens it issued itself.
type Authenticator struct {
	enabled  bool
	accounts map[string]account
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthenticator hashes the configured account passwords. Without a
// JWT secret a random one is generated, so tokens do not survive a restart.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{
		enabled:  cfg.Enabled,
		accounts: make(map[string]account),
		tokenTTL: cfg.TokenTTL,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = defaultTokenTTL
	}

	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
	} else {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}

	if err := a.addAccount(cfg.UserName, cfg.UserPassword, RoleUser); err != nil {
		return nil, err
	}
	if err := a.addAccount(cfg.AdminName, cfg.AdminPassword, RoleUser, RoleAdmin); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Authenticator) addAccount(name, password string, roles ...string) error {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", name, err)
	}
	a.accounts[name] = account{passwordHash: hashed, roles: roles}
	return nil
}

// Enabled reports whether requests are checked at all.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// RequireAuth rejects requests without valid credentials and stores the
// principal in the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", authRealm)
			writeError(w, r, apierr.Wrap(apierr.Unauthorized, err, "Full authentication is required to access this resource"))
			return
		}

		ctx := context.WithValue(r.Context(), contextPrincipalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated callers that lack role.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled {
				next.ServeHTTP(w, r)
				return
			}

			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.HasRole(role) {
				writeError(w, r, apierr.Forbiddenf("You don't have permission to access this resource"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthRouter registers token routes on the given router.
func AuthRouter(r chi.Router, a *Authenticator) {
	r.With(a.RequireAuth).Post("/token", a.IssueToken)
	r.With(a.RequireAuth).Get("/me", a.Me)
}

// IssueToken exchanges the caller's credentials for a Bearer token.
func (a *Authenticator) IssueToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apierr.Unauthorizedf("Full authentication is required to access this resource"))
		return
	}

	expiresAt := time.Now().Add(a.tokenTTL)
	token, err := a.signToken(principal, expiresAt)
	if err != nil {
		writeError(w, r, fmt.Errorf("sign token: %w", err))
		return
	}

	writeSuccess(w, http.StatusOK, "Token issued successfully", TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
	})
}

// Me returns the current principal.
func (a *Authenticator) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, apierr.Unauthorizedf("Full authentication is required to access this resource"))
		return
	}
	writeSuccess(w, http.StatusOK, "Principal retrieved successfully", principal)
}

type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PrincipalFromContext returns the caller stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextPrincipalKey).(Principal)
	return principal, ok
}

func (a *Authenticator) authenticate(r *http.Request) (Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Principal{}, errors.New("missing authorization")
	}

	scheme, _, _ := strings.Cut(header, " ")
	switch {
	case strings.EqualFold(scheme, "Basic"):
		return a.authenticateBasic(r)
	case strings.EqualFold(scheme, "Bearer"):
		return a.authenticateBearer(header[len(scheme):])
	default:
		return Principal{}, errors.New("unsupported authorization scheme")
	}
}

func (a *Authenticator) authenticateBasic(r *http.Request) (Principal, error) {
	name, password, ok := r.BasicAuth()
	if !ok {
		return Principal{}, errors.New("invalid basic authorization")
	}
	acct, found := a.accounts[name]
	if !found {
		return Principal{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return Principal{}, errors.New("invalid credentials")
	}
	return Principal{Name: name, Roles: slices.Clone(acct.roles)}, nil
}

func (a *Authenticator) authenticateBearer(raw string) (Principal, error) {
	tokenString := strings.TrimSpace(raw)
	if tokenString == "" {
		return Principal{}, errors.New("invalid authorization")
	}

	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, errors.New("missing subject")
	}
	return Principal{Name: claims.Subject, Roles: claims.Roles}, nil
}

func (a *Authenticator) signToken(principal Principal, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Roles: principal.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
