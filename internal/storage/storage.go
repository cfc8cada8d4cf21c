package storage

import (
	"time"

	"github.com/avetra/funnel-bot/internal/models"
)

// EngagementStore tracks drip-funnel state per user.
type EngagementStore interface {
	// TouchEngagement resets the user's stage to zero and stamps activity,
	// creating the row on first interaction. FunnelDone is left untouched.
	// Returns true when this interaction created the row.
	TouchEngagement(userID int64, at time.Time) (bool, error)
	// EngagementSnapshot returns a copy of all tracked users, safe to
	// iterate while inbound interactions mutate the live rows.
	EngagementSnapshot() ([]models.UserEngagement, error)
	SetStage(userID int64, stage int) error
	MarkFunnelDone(userID int64) error
	IsFunnelDone(userID int64) (bool, error)
}

// SubscriptionStore persists the single entitlement row per user.
// Extension math lives in the entitlements service; the store only
// reads and upserts rows.
type SubscriptionStore interface {
	GetSubscription(userID int64) (*models.Subscription, error)
	PutSubscription(sub models.Subscription) error
	ActiveSubscriberIDs(now time.Time) ([]int64, error)
	AllUserIDs() ([]int64, error)
	CourseUserIDs() ([]int64, error)
	PaidUserIDs() ([]int64, error)
	VIPUserIDs() ([]int64, error)
}

// ThreadStore maps users to assistant session handles.
type ThreadStore interface {
	GetThread(userID int64) (*models.AssistantThread, error)
	// SaveThread upserts handle and reset date in a single statement.
	SaveThread(userID int64, threadID, resetDate string) error
	DeleteThread(userID int64) error
	// DeleteThreadsNotOn removes every row whose reset date differs from
	// the given date and returns the number removed.
	DeleteThreadsNotOn(date string) (int, error)
}

// ReferralStore persists referral accounts and the bonus ledger.
type ReferralStore interface {
	CreateReferralAccount(acc models.ReferralAccount) error
	GetReferralAccount(userID int64) (*models.ReferralAccount, error)
	UpdateReferralEmail(userID int64, email string) error
	// SetReferrer records the referrer for an existing account. Callers
	// must have verified the account has no referrer yet.
	SetReferrer(userID, referrerID int64) error
	// AddReferralBonus appends a ledger entry and increments the
	// referrer's balance.
	AddReferralBonus(referrerID, referredID int64, amount int, at time.Time) error
	HasReferralBonus(referrerID, referredID int64) (bool, error)
	// UseReferralBalance debits amount if the balance covers it and
	// reports whether the debit happened.
	UseReferralBalance(userID int64, amount int) (bool, error)
	SetAwaitingReferrer(userID int64, waiting bool) error
	IsAwaitingReferrer(userID int64) (bool, error)
}

// PaymentStore is the processed-token dedup ledger for webhook retries.
type PaymentStore interface {
	// MarkPaymentProcessed records the token and reports true only the
	// first time it is seen.
	MarkPaymentProcessed(token string, at time.Time) (bool, error)
}

// BlockStore remembers users who blocked the bot so future sends are
// suppressed instead of erroring.
type BlockStore interface {
	BlockUser(userID int64, reason string) error
	IsBlocked(userID int64) (bool, error)
}

// MediaStore caches transport file ids per local asset path.
type MediaStore interface {
	GetFileID(path string) (string, error)
	SaveFileID(path, fileID, kind string, size int64) error
}

// PromoStore tracks the one-time promotional nudge.
type PromoStore interface {
	MarkPromoSent(userID int64, content string, at time.Time) error
	IsPromoSent(userID int64) (bool, error)
	// PromoCandidates returns users first seen before the cutoff with no
	// active subscription and no nudge sent yet.
	PromoCandidates(seenBefore, now time.Time) ([]int64, error)
	ResetPromoHistory() (int, error)
	PromoResetDoneOn(date string) (bool, error)
	MarkPromoResetDone(date string, at time.Time) error
}

// BroadcastStore records admin fan-outs.
type BroadcastStore interface {
	CreateBroadcast(job models.BroadcastJob) error
	UpdateBroadcast(id string, sent, errors int, completedAt *time.Time) error
}

// StatsStore accumulates traffic and daily usage counters.
type StatsStore interface {
	LogTraffic(entry models.TrafficEntry) error
	BumpDailyStats(date string, delta models.DailyStats) error
	GetDailyStats(date string) (models.DailyStats, error)
	TopOperations(date string, limit int) ([]models.OperationTotal, error)
}

// UTMStore persists acquisition tags.
type UTMStore interface {
	SaveUTM(utm models.UserUTM) error
	GetUTM(userID int64) (*models.UserUTM, error)
}

// Storage is the full persistence surface consumed by the application.
type Storage interface {
	EngagementStore
	SubscriptionStore
	ThreadStore
	ReferralStore
	PaymentStore
	BlockStore
	MediaStore
	PromoStore
	BroadcastStore
	StatsStore
	UTMStore
	Close() error
}
