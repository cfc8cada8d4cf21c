package models

import "time"

// TariffKind identifies a paid tier.
type TariffKind string

const (
	TariffNone   TariffKind = ""
	TariffBasic  TariffKind = "basic"
	TariffVIP    TariffKind = "vip"
	TariffCourse TariffKind = "course"
)

// Known reports whether the kind is one of the sellable tariffs.
func (t TariffKind) Known() bool {
	switch t {
	case TariffBasic, TariffVIP, TariffCourse:
		return true
	}
	return false
}

// UserEngagement tracks a user's position in the drip sequence.
// Stage only moves forward within a funnel run; FunnelDone is sticky.
type UserEngagement struct {
	UserID         int64     `json:"user_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Stage          int       `json:"stage"`
	FunnelDone     bool      `json:"funnel_done"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscription is the single entitlement row kept per user.
type Subscription struct {
	UserID      int64      `json:"user_id"`
	Tariff      TariffKind `json:"tariff"`
	PaymentDate time.Time  `json:"payment_date"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Active      bool       `json:"active"`
	PaymentRef  string     `json:"payment_ref"`
	BasicCount  int        `json:"basic_count"`
	VIPCount    int        `json:"vip_count"`
	CourseCount int        `json:"course_count"`
}

// SubscriptionStatus is the derived view returned to callers.
type SubscriptionStatus struct {
	Tariff    TariffKind `json:"tariff"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsActive  bool       `json:"is_active"`
	IsExpired bool       `json:"is_expired"`
	DaysLeft  int        `json:"days_left"`
}

// AssistantThread maps a user to their external assistant session.
// LastResetDate is a YYYY-MM-DD date in the reference timezone.
type AssistantThread struct {
	UserID        int64     `json:"user_id"`
	ThreadID      string    `json:"thread_id"`
	LastResetDate string    `json:"last_reset_date"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReferralAccount is a user's referral-program profile.
// ReferrerID is zero until set and immutable afterwards.
type ReferralAccount struct {
	UserID           int64     `json:"user_id"`
	Email            string    `json:"email,omitempty"`
	ReferrerID       int64     `json:"referrer_id,omitempty"`
	Balance          int       `json:"balance"`
	AwaitingReferrer bool      `json:"awaiting_referrer"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// ReferralBonus is one append-only ledger entry. The unique
// (referrer, referred) pair is the dedup key for bonus grants.
type ReferralBonus struct {
	ReferrerID int64     `json:"referrer_id"`
	ReferredID int64     `json:"referred_id"`
	Amount     int       `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audience selects the recipient set of a broadcast.
type Audience string

const (
	AudienceAll         Audience = "all"
	AudienceSubscribers Audience = "subscribers"
	AudienceCourse      Audience = "course"
	AudiencePaid        Audience = "paid"
	AudienceVIP         Audience = "vip"
)

// BroadcastJob records one admin fan-out and its progress counters.
type BroadcastJob struct {
	ID          string     `json:"id"`
	AdminID     int64      `json:"admin_id"`
	Audience    Audience   `json:"audience"`
	MessageText string     `json:"message_text"`
	MediaType   string     `json:"media_type"`
	Recipients  int        `json:"recipients"`
	Sent        int        `json:"sent"`
	Errors      int        `json:"errors"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CachedMedia maps a local asset path to the transport's reusable file id.
type CachedMedia struct {
	Path     string    `json:"path"`
	FileID   string    `json:"file_id"`
	Kind     string    `json:"kind"`
	Size     int64     `json:"size"`
	LastUsed time.Time `json:"last_used"`
}

// UserUTM holds the acquisition tags parsed from a start parameter.
type UserUTM struct {
	UserID   int64  `json:"user_id"`
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
}

// TrafficEntry is one logged outbound operation.
type TrafficEntry struct {
	Operation string    `json:"operation"`
	UserID    int64     `json:"user_id,omitempty"`
	DataType  string    `json:"data_type,omitempty"`
	DataSize  int64     `json:"data_size"`
	FilePath  string    `json:"file_path,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// DailyStats accumulates per-day usage counters keyed by YYYY-MM-DD.
type DailyStats struct {
	Date           string `json:"date"`
	Messages       int64  `json:"messages"`
	MediaSent      int64  `json:"media_sent"`
	BytesSent      int64  `json:"bytes_sent"`
	AssistantCalls int64  `json:"assistant_calls"`
	BlockedUsers   int64  `json:"blocked_users"`
	NewUsers       int64  `json:"new_users"`
}

// OperationTotal is an aggregate row of the traffic log.
type OperationTotal struct {
	Operation string `json:"operation"`
	Count     int64  `json:"count"`
	Bytes     int64  `json:"bytes"`
}
