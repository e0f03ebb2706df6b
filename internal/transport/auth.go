package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/usemanusai/tce/internal/config"
	"github.com/usemanusai/tce/model"
)

// Authenticator returns middleware that validates HS256 bearer tokens and
// stores the resulting principal in the request context. When auth is
// disabled it installs an anonymous principal instead, so handlers never
// have to care which deployment mode they run in.
func Authenticator(cfg config.AuthConfig, secret string) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := model.WithPrincipal(r.Context(), &model.Principal{SubjectID: "anonymous"})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}

	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(err.Error()))
				return
			}

			principal, err := verifyToken(token, key, cfg)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError("invalid token"))
				return
			}

			ctx := model.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("Authorization header is not a bearer token")
	}
	return strings.TrimPrefix(header, prefix), nil
}

func verifyToken(token string, key []byte, cfg config.AuthConfig) (*model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	name, _ := claims["name"].(string)

	var roles []string
	if raw, ok := claims["roles"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	return &model.Principal{SubjectID: sub, Name: name, Roles: roles}, nil
}
