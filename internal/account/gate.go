package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tubetext/tubetext-server/internal/logging"
)

// SessionCookie carries the signed session token set by the sign-in flow.
const SessionCookie = "tubetext_token"

var (
	ErrUnauthenticated = errors.New("sign in required")
	ErrForbidden       = errors.New("premium subscription required")
	ErrUsageLimit      = errors.New("free usage limit reached")
	ErrMissingSecret   = errors.New("session signing secret not configured")
)

type GateConfig struct {
	Secret         string
	FreeUsageLimit int
	UsageWindow    time.Duration
}

// Gate resolves the caller of a request and decides whether they may use a
// feature. It never blocks anonymous callers on its own.
type Gate struct {
	repo   Repository
	cfg    GateConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewGate(repo Repository, cfg GateConfig, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gate{
		repo:   repo,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "gate"),
		now:    time.Now,
	}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a session token for userID valid for ttl.
func (g *Gate) IssueToken(userID string, ttl time.Duration) (string, error) {
	if g.cfg.Secret == "" {
		return "", ErrMissingSecret
	}
	now := g.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.cfg.Secret))
}

// Authenticate returns the signed-in user, or nil for anonymous callers.
// Missing, malformed, expired and unknown-user tokens are all anonymous; only
// storage failures are reported as errors.
func (g *Gate) Authenticate(r *http.Request) (*User, error) {
	token := tokenFromRequest(r)
	if token == "" || g.cfg.Secret == "" {
		return nil, nil
	}

	userID, err := g.parseToken(token)
	if err != nil {
		g.logger.Debug("ignoring invalid session token",
			"token", logging.SanitizeToken(token), "error", err)
		return nil, nil
	}

	user, err := g.repo.GetUser(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (g *Gate) parseToken(tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(g.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// RequirePremium allows only signed-in users whose effective tier is premium.
func (g *Gate) RequirePremium(user *User) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if !user.IsPremium() {
		return ErrForbidden
	}
	return nil
}

// ConsumeFreeUse records one free-tier transcript for user. Anonymous
// callers and premium users are not counted.
func (g *Gate) ConsumeFreeUse(ctx context.Context, user *User) error {
	if user == nil || user.IsPremium() || g.cfg.FreeUsageLimit <= 0 {
		return nil
	}

	ok, err := g.repo.ConsumeUsage(ctx, user.ID, g.cfg.FreeUsageLimit, g.cfg.UsageWindow, g.now())
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	if !ok {
		g.logger.Info("free usage limit reached", "user_id", user.ID, "limit", g.cfg.FreeUsageLimit)
		return ErrUsageLimit
	}
	return nil
}

// RefundFreeUse returns a use taken by ConsumeFreeUse for a request that
// produced nothing.
func (g *Gate) RefundFreeUse(ctx context.Context, user *User) error {
	if user == nil || user.IsPremium() || g.cfg.FreeUsageLimit <= 0 {
		return nil
	}
	if err := g.repo.ReleaseUsage(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to release usage: %w", err)
	}
	return nil
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
