// Package account stores users, linked OAuth identities and subscriptions,
// and implements the access and usage gate in front of paid features.
package account

import (
	"time"

	"github.com/google/uuid"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"

	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionPastDue  = "past_due"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Tier         Tier      `json:"tier"`
	UsageCount   int       `json:"usage_count"`
	UsageResetAt time.Time `json:"usage_reset_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// HasActiveSubscription is derived from the subscriptions table.
	HasActiveSubscription bool `json:"-"`
}

// EffectiveTier is premium when the stored tier says so or when the user
// holds an active subscription.
func (u *User) EffectiveTier() Tier {
	if u.Tier == TierPremium || u.HasActiveSubscription {
		return TierPremium
	}
	return TierFree
}

func (u *User) IsPremium() bool {
	return u.EffectiveTier() == TierPremium
}

type OAuthAccount struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Subscription struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	StripeCustomerID     string    `json:"stripe_customer_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string    `json:"stripe_price_id"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}
