package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/models"
)

// ErrMissingSecret is returned when no JWT signing secret is configured.
var ErrMissingSecret = errors.New("jwt secret is required to serve the API")

type actorKey struct{}

// Claims are the bearer token claims mapped onto a models.Actor.
type Claims struct {
	OrganizationID string `json:"org_id"`
	MFA            bool   `json:"mfa,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an authenticator. An empty issuer is not checked.
func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer}, nil
}

// Actor parses a raw token into the caller identity.
func (a *Authenticator) Actor(raw string) (models.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return models.Actor{}, err
	}
	if claims.OrganizationID == "" || claims.Subject == "" {
		return models.Actor{}, errors.New("token is missing org_id or sub")
	}

	return models.Actor{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.Subject,
		MFAVerified:    claims.MFA,
	}, nil
}

// Sign issues a token for actor. It is used by the CLI and tests.
func (a *Authenticator) Sign(actor models.Actor, registered jwt.RegisteredClaims) (string, error) {
	registered.Subject = actor.UserID
	if registered.Issuer == "" {
		registered.Issuer = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OrganizationID:   actor.OrganizationID,
		MFA:              actor.MFAVerified,
		RegisteredClaims: registered,
	})
	return token.SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the actor.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		actor, err := a.Actor(strings.TrimSpace(raw))
		if err != nil {
			writeUnauthorized(w, "invalid bearer token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// ActorFromContext returns the authenticated caller.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="certify"`)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
		Code:    apperror.CodeUnauthorized,
		Message: message,
	}})
}
