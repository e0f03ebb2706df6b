package integration

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	Name      string
	Roles     []string
}

// OperatorClaims returns claims for a standard workflow operator.
func OperatorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-operator-1",
		Name:      "Olive Operator",
		Roles:     []string{"operator"},
	}
}

// tokenIssuer signs HS256 JWTs with a per-harness random secret.
type tokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate signing secret: %v", err)
	}

	return &tokenIssuer{
		secret:   secret,
		issuer:   "https://auth.test.tce.dev",
		audience: "tce-test",
	}
}

// Secret returns the signing secret in the hex form the server reads from
// its environment.
func (ti *tokenIssuer) Secret() string {
	return hex.EncodeToString(ti.secret)
}

// GenerateToken creates a valid, signed JWT with the given claims.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.sign(claims, time.Now().Add(time.Hour))
}

// GenerateExpiredToken creates a JWT that expired an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return ti.sign(claims, time.Now().Add(-time.Hour))
}

func (ti *tokenIssuer) sign(claims TestClaims, expiry time.Time) string {
	now := time.Now()

	mapClaims := jwt.MapClaims{
		"iss": ti.issuer,
		"aud": ti.audience,
		"sub": claims.SubjectID,
		"iat": jwt.NewNumericDate(now.Add(-time.Minute)),
		"exp": jwt.NewNumericDate(expiry),
	}
	if claims.Name != "" {
		mapClaims["name"] = claims.Name
	}
	if len(claims.Roles) > 0 {
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	signed, err := token.SignedString([]byte(ti.Secret()))
	if err != nil {
		panic(err)
	}
	return signed
}
