package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

// Authentication is the settled outcome of a successful credential check.
// Subject carries the identity the portal's login service issued the token
// for; IsService marks API-key callers (the CRUD backend tier).
type Authentication struct {
	Subject   string
	Role      string
	IsService bool
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Audience is the audience claim the portal's login service stamps on every
// token it issues; tokens minted for anything else are rejected.
const Audience = "ecorwanda-portal"

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(Audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

// AuthenticateToken verifies a bearer token from a connection handshake and
// extracts the identity it was issued for.
func (a *Authenticator) AuthenticateToken(tokenString string) (*Authentication, error) {
	if tokenString == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing token"))
	}

	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid subject claim"))
	}

	return &Authentication{
		Subject:   subject,
		Role:      claims.Role,
		IsService: false,
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject:   "api",
				IsService: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}
