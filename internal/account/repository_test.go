package account

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tubetext/tubetext-server/internal/db"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func createUser(t *testing.T, repo *SQLiteRepository, email string) *User {
	t.Helper()
	u := &User{Email: email, Name: "Test"}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestRepository_CreateAndGetUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := createUser(t, repo, "ada@example.com")
	if u.ID == "" {
		t.Fatal("CreateUser should assign an id")
	}

	got, err := repo.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetUser() returned nil")
	}
	if got.Email != "ada@example.com" || got.Tier != TierFree {
		t.Errorf("got %+v", got)
	}
	if got.HasActiveSubscription {
		t.Error("new user should have no subscription")
	}

	byEmail, err := repo.GetUserByEmail(ctx, "ada@example.com")
	if err != nil || byEmail == nil || byEmail.ID != u.ID {
		t.Errorf("GetUserByEmail() = %v, %v", byEmail, err)
	}

	missing, err := repo.GetUser(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetUser(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestRepository_OAuthLink(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createUser(t, repo, "grace@example.com")

	acct := &OAuthAccount{UserID: u.ID, Provider: "google", ProviderUserID: "g-123"}
	if err := repo.LinkOAuthAccount(ctx, acct); err != nil {
		t.Fatalf("LinkOAuthAccount() error = %v", err)
	}
	// Linking the same identity twice is a no-op.
	if err := repo.LinkOAuthAccount(ctx, &OAuthAccount{UserID: u.ID, Provider: "google", ProviderUserID: "g-123"}); err != nil {
		t.Fatalf("second LinkOAuthAccount() error = %v", err)
	}

	got, err := repo.GetUserByOAuth(ctx, "google", "g-123")
	if err != nil || got == nil || got.ID != u.ID {
		t.Errorf("GetUserByOAuth() = %v, %v", got, err)
	}
}

func TestRepository_SubscriptionMakesPremium(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createUser(t, repo, "linus@example.com")

	sub := &Subscription{UserID: u.ID, StripeCustomerID: "cus_1", StripePriceID: "price_1"}
	if err := repo.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription() error = %v", err)
	}

	got, _ := repo.GetUser(ctx, u.ID)
	if !got.IsPremium() {
		t.Error("user with active subscription should be premium")
	}

	sub.Status = SubscriptionCanceled
	if err := repo.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription(cancel) error = %v", err)
	}
	got, _ = repo.GetUser(ctx, u.ID)
	if got.IsPremium() {
		t.Error("canceled subscription should not grant premium")
	}

	stored, err := repo.GetSubscription(ctx, u.ID)
	if err != nil || stored == nil || stored.Status != SubscriptionCanceled {
		t.Errorf("GetSubscription() = %+v, %v", stored, err)
	}
}

func TestRepository_ConsumeUsage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createUser(t, repo, "ken@example.com")

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		ok, err := repo.ConsumeUsage(ctx, u.ID, 2, time.Hour, now)
		if err != nil || !ok {
			t.Fatalf("use %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := repo.ConsumeUsage(ctx, u.ID, 2, time.Hour, now.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("third use inside the window should be rejected")
	}

	ok, err = repo.ConsumeUsage(ctx, u.ID, 2, time.Hour, now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("use after window: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetUser(ctx, u.ID)
	if got.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1 after reset", got.UsageCount)
	}
	if want := now.Add(2 * time.Hour); !got.UsageResetAt.Equal(want) {
		t.Errorf("UsageResetAt = %v, want %v", got.UsageResetAt, want)
	}
}

func TestRepository_ReleaseUsageNeverNegative(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createUser(t, repo, "neg@example.com")

	if err := repo.ReleaseUsage(ctx, u.ID); err != nil {
		t.Fatalf("ReleaseUsage() error = %v", err)
	}
	got, _ := repo.GetUser(ctx, u.ID)
	if got.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0", got.UsageCount)
	}
}

func TestRepository_ConsumeUsageUnknownUser(t *testing.T) {
	repo := newTestRepo(t)
	ok, err := repo.ConsumeUsage(context.Background(), "ghost", 5, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown user should not be counted")
	}
}
