package middleware

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/kozaktomas/face-attendance/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenDuration = 12 * time.Hour

// ErrInvalidCredentials is returned by Login for a wrong user or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims are the JWT claims of an API token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies API bearer tokens for the single
// admin account.
type Authenticator struct {
	secret       []byte
	user         string
	passwordHash []byte
	now          func() time.Time
}

// NewAuthenticator creates an authenticator from the web configuration.
// Without a password hash authentication is disabled. Without a JWT secret
// a random one is generated, so tokens do not survive a restart.
func NewAuthenticator(cfg config.WebConfig) *Authenticator {
	secret := []byte(cfg.JWTSecret)
	if cfg.AuthEnabled() && len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generating jwt secret: %v", err))
		}
		log.Warn("WEB_JWT_SECRET is not set, tokens are invalidated on restart")
	}
	return &Authenticator{
		secret:       secret,
		user:         cfg.AdminUser,
		passwordHash: []byte(cfg.AdminPasswordHash),
		now:          time.Now,
	}
}

// Enabled reports whether requests must be authenticated.
func (a *Authenticator) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login checks the credentials and returns a signed token.
func (a *Authenticator) Login(user, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, errors.New("authentication is disabled")
	}
	if user != a.user {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(tokenDuration)
	claims := Claims{
		Username: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expires, nil
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
