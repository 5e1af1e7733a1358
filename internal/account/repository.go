package account

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserTier(ctx context.Context, id string, tier Tier) error

	LinkOAuthAccount(ctx context.Context, acct *OAuthAccount) error
	GetUserByOAuth(ctx context.Context, provider, providerUserID string) (*User, error)

	UpsertSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)

	// ConsumeUsage atomically records one use for userID. When the usage
	// window has elapsed the counter restarts at 1 and the window is moved to
	// now+window. It reports false when the user already reached limit.
	ConsumeUsage(ctx context.Context, userID string, limit int, window time.Duration, now time.Time) (bool, error)
	// ReleaseUsage gives back one use recorded by ConsumeUsage.
	ReleaseUsage(ctx context.Context, userID string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const userColumns = `
	u.id, u.email, u.name, u.avatar_url, u.tier, u.usage_count, u.usage_reset_at, u.created_at, u.updated_at,
	EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'active')`

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.Tier == "" {
		u.Tier = TierFree
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.UsageResetAt.IsZero() {
		u.UsageResetAt = time.Unix(0, 0).UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, avatar_url, tier, usage_count, usage_reset_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, nullString(u.AvatarURL), string(u.Tier), u.UsageCount,
		formatTime(u.UsageResetAt), formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email)
	return scanUser(row)
}

func (r *SQLiteRepository) UpdateUserTier(ctx context.Context, id string, tier Tier) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET tier = ?, updated_at = ? WHERE id = ?",
		string(tier), formatTime(time.Now().UTC()), id)
	return err
}

func (r *SQLiteRepository) LinkOAuthAccount(ctx context.Context, a *OAuthAccount) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_user_id) DO NOTHING
	`, a.ID, a.UserID, a.Provider, a.ProviderUserID, formatTime(a.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetUserByOAuth(ctx context.Context, provider, providerUserID string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN oauth_accounts o ON o.user_id = u.id
		WHERE o.provider = ? AND o.provider_user_id = ?
	`, provider, providerUserID)
	return scanUser(row)
}

func (r *SQLiteRepository) UpsertSubscription(ctx context.Context, s *Subscription) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.Status == "" {
		s.Status = SubscriptionActive
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			stripe_price_id = excluded.stripe_price_id,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, s.ID, s.UserID, s.StripeCustomerID, nullString(s.StripeSubscriptionID), s.StripePriceID, s.Status,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	var s Subscription
	var stripeSubID sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status, created_at, updated_at
		FROM subscriptions WHERE user_id = ?
	`, userID).Scan(&s.ID, &s.UserID, &s.StripeCustomerID, &stripeSubID, &s.StripePriceID, &s.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.StripeSubscriptionID = stripeSubID.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (r *SQLiteRepository) ConsumeUsage(ctx context.Context, userID string, limit int, window time.Duration, now time.Time) (bool, error) {
	nowStr := formatTime(now.UTC())
	nextReset := formatTime(now.UTC().Add(window))

	// Timestamps are stored as fixed-width RFC3339 UTC strings, so string
	// comparison orders them correctly.
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			usage_count = CASE WHEN usage_reset_at <= ? THEN 1 ELSE usage_count + 1 END,
			usage_reset_at = CASE WHEN usage_reset_at <= ? THEN ? ELSE usage_reset_at END,
			updated_at = ?
		WHERE id = ? AND (usage_reset_at <= ? OR usage_count < ?)
	`, nowStr, nowStr, nextReset, nowStr, userID, nowStr, limit)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ReleaseUsage(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET usage_count = MAX(usage_count - 1, 0), updated_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), userID)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var avatar sql.NullString
	var tier, resetAt, createdAt, updatedAt string
	var hasSub int

	err := row.Scan(&u.ID, &u.Email, &u.Name, &avatar, &tier, &u.UsageCount, &resetAt, &createdAt, &updatedAt, &hasSub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.AvatarURL = avatar.String
	u.Tier = Tier(tier)
	u.UsageResetAt = parseTime(resetAt)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.HasActiveSubscription = hasSub == 1
	return &u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
