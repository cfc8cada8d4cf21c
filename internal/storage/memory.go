package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avetra/funnel-bot/internal/models"
)

// MemoryStorage is a mutex-guarded map-backed Storage used for tests
// and for running without a database.
type MemoryStorage struct {
	mu sync.RWMutex

	engagement    map[int64]*models.UserEngagement
	subscriptions map[int64]*models.Subscription
	threads       map[int64]*models.AssistantThread
	referrals     map[int64]*models.ReferralAccount
	bonuses       map[[2]int64]models.ReferralBonus
	payments      map[string]time.Time
	blocked       map[int64]string
	media         map[string]models.CachedMedia
	promoSent     map[int64]time.Time
	promoResets   map[string]time.Time
	broadcasts    map[string]*models.BroadcastJob
	traffic       []models.TrafficEntry
	daily         map[string]*models.DailyStats
	utm           map[int64]models.UserUTM
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		engagement:    make(map[int64]*models.UserEngagement),
		subscriptions: make(map[int64]*models.Subscription),
		threads:       make(map[int64]*models.AssistantThread),
		referrals:     make(map[int64]*models.ReferralAccount),
		bonuses:       make(map[[2]int64]models.ReferralBonus),
		payments:      make(map[string]time.Time),
		blocked:       make(map[int64]string),
		media:         make(map[string]models.CachedMedia),
		promoSent:     make(map[int64]time.Time),
		promoResets:   make(map[string]time.Time),
		broadcasts:    make(map[string]*models.BroadcastJob),
		daily:         make(map[string]*models.DailyStats),
		utm:           make(map[int64]models.UserUTM),
	}
}

func (s *MemoryStorage) Close() error {
	return nil
}

// Engagement

func (s *MemoryStorage) TouchEngagement(userID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, exists := s.engagement[userID]; exists {
		u.LastActivityAt = at
		u.Stage = 0
		return false, nil
	}
	s.engagement[userID] = &models.UserEngagement{
		UserID:         userID,
		LastActivityAt: at,
		CreatedAt:      at,
	}
	return true, nil
}

func (s *MemoryStorage) EngagementSnapshot() ([]models.UserEngagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.UserEngagement, 0, len(s.engagement))
	for _, u := range s.engagement {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

func (s *MemoryStorage) SetStage(userID int64, stage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, exists := s.engagement[userID]; exists && stage > u.Stage {
		u.Stage = stage
	}
	return nil
}

func (s *MemoryStorage) MarkFunnelDone(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, exists := s.engagement[userID]; exists {
		u.FunnelDone = true
		return nil
	}
	now := time.Now()
	s.engagement[userID] = &models.UserEngagement{
		UserID:         userID,
		LastActivityAt: now,
		FunnelDone:     true,
		CreatedAt:      now,
	}
	return nil
}

func (s *MemoryStorage) IsFunnelDone(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, exists := s.engagement[userID]; exists {
		return u.FunnelDone, nil
	}
	return false, nil
}

// Subscriptions

func (s *MemoryStorage) GetSubscription(userID int64) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, exists := s.subscriptions[userID]; exists {
		copied := *sub
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) PutSubscription(sub models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.UserID] = &sub
	return nil
}

func (s *MemoryStorage) ActiveSubscriberIDs(now time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, sub := range s.subscriptions {
		if sub.Active && sub.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStorage) AllUserIDs() ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	for id := range s.engagement {
		seen[id] = struct{}{}
	}
	for id := range s.subscriptions {
		seen[id] = struct{}{}
	}
	for id := range s.threads {
		seen[id] = struct{}{}
	}
	for id := range s.referrals {
		seen[id] = struct{}{}
	}
	for id := range s.utm {
		seen[id] = struct{}{}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStorage) CourseUserIDs() ([]int64, error) {
	return s.filterSubscribers(func(sub *models.Subscription) bool {
		return sub.Tariff == models.TariffCourse || sub.CourseCount > 0
	})
}

func (s *MemoryStorage) PaidUserIDs() ([]int64, error) {
	return s.filterSubscribers(func(sub *models.Subscription) bool {
		return sub.Tariff == models.TariffBasic || sub.Tariff == models.TariffVIP ||
			sub.BasicCount > 0 || sub.VIPCount > 0
	})
}

func (s *MemoryStorage) VIPUserIDs() ([]int64, error) {
	return s.filterSubscribers(func(sub *models.Subscription) bool {
		return sub.Tariff == models.TariffVIP || sub.VIPCount > 0
	})
}

func (s *MemoryStorage) filterSubscribers(match func(*models.Subscription) bool) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, sub := range s.subscriptions {
		if match(sub) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Assistant threads

func (s *MemoryStorage) GetThread(userID int64) (*models.AssistantThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, exists := s.threads[userID]; exists {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveThread(userID int64, threadID, resetDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[userID] = &models.AssistantThread{
		UserID:        userID,
		ThreadID:      threadID,
		LastResetDate: resetDate,
		UpdatedAt:     time.Now(),
	}
	return nil
}

func (s *MemoryStorage) DeleteThread(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, userID)
	return nil
}

func (s *MemoryStorage) DeleteThreadsNotOn(date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, t := range s.threads {
		if t.LastResetDate != date {
			delete(s.threads, id)
			deleted++
		}
	}
	return deleted, nil
}

// Referrals

func (s *MemoryStorage) CreateReferralAccount(acc models.ReferralAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.referrals[acc.UserID]; exists {
		return nil
	}
	s.referrals[acc.UserID] = &acc
	return nil
}

func (s *MemoryStorage) GetReferralAccount(userID int64) (*models.ReferralAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if acc, exists := s.referrals[userID]; exists {
		copied := *acc
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) UpdateReferralEmail(userID int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, exists := s.referrals[userID]; exists {
		acc.Email = email
	}
	return nil
}

func (s *MemoryStorage) SetReferrer(userID, referrerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, exists := s.referrals[userID]; exists && acc.ReferrerID == 0 {
		acc.ReferrerID = referrerID
	}
	return nil
}

func (s *MemoryStorage) AddReferralBonus(referrerID, referredID int64, amount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]int64{referrerID, referredID}
	if _, exists := s.bonuses[key]; exists {
		return fmt.Errorf("bonus already granted for pair (%d, %d)", referrerID, referredID)
	}
	s.bonuses[key] = models.ReferralBonus{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Amount:     amount,
		CreatedAt:  at,
	}
	if acc, exists := s.referrals[referrerID]; exists {
		acc.Balance += amount
	}
	return nil
}

func (s *MemoryStorage) HasReferralBonus(referrerID, referredID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.bonuses[[2]int64{referrerID, referredID}]
	return exists, nil
}

func (s *MemoryStorage) UseReferralBalance(userID int64, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, exists := s.referrals[userID]
	if !exists || acc.Balance < amount {
		return false, nil
	}
	acc.Balance -= amount
	return true, nil
}

func (s *MemoryStorage) SetAwaitingReferrer(userID int64, waiting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, exists := s.referrals[userID]; exists {
		acc.AwaitingReferrer = waiting
	}
	return nil
}

func (s *MemoryStorage) IsAwaitingReferrer(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if acc, exists := s.referrals[userID]; exists {
		return acc.AwaitingReferrer, nil
	}
	return false, nil
}

// Payment dedup ledger

func (s *MemoryStorage) MarkPaymentProcessed(token string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[token]; exists {
		return false, nil
	}
	s.payments[token] = at
	return true, nil
}

// Blocked users

func (s *MemoryStorage) BlockUser(userID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocked[userID] = reason
	return nil
}

func (s *MemoryStorage) IsBlocked(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.blocked[userID]
	return exists, nil
}

// Media cache

func (s *MemoryStorage) GetFileID(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, exists := s.media[path]; exists {
		return m.FileID, nil
	}
	return "", nil
}

func (s *MemoryStorage) SaveFileID(path, fileID, kind string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.media[path] = models.CachedMedia{
		Path:     path,
		FileID:   fileID,
		Kind:     kind,
		Size:     size,
		LastUsed: time.Now(),
	}
	return nil
}

// Promo nudge

func (s *MemoryStorage) MarkPromoSent(userID int64, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promoSent[userID] = at
	return nil
}

func (s *MemoryStorage) IsPromoSent(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.promoSent[userID]
	return exists, nil
}

func (s *MemoryStorage) PromoCandidates(seenBefore, now time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, u := range s.engagement {
		if !u.CreatedAt.Before(seenBefore) {
			continue
		}
		if _, sent := s.promoSent[id]; sent {
			continue
		}
		if sub, exists := s.subscriptions[id]; exists && sub.Active && sub.ExpiresAt.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStorage) ResetPromoHistory() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := len(s.promoSent)
	s.promoSent = make(map[int64]time.Time)
	return deleted, nil
}

func (s *MemoryStorage) PromoResetDoneOn(date string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.promoResets[date]
	return exists, nil
}

func (s *MemoryStorage) MarkPromoResetDone(date string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promoResets[date] = at
	return nil
}

// Broadcasts

func (s *MemoryStorage) CreateBroadcast(job models.BroadcastJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcasts[job.ID] = &job
	return nil
}

func (s *MemoryStorage) UpdateBroadcast(id string, sent, errCount int, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.broadcasts[id]; exists {
		job.Sent = sent
		job.Errors = errCount
		job.CompletedAt = completedAt
	}
	return nil
}

// Stats

func (s *MemoryStorage) LogTraffic(entry models.TrafficEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traffic = append(s.traffic, entry)
	return nil
}

// TrafficEntries returns a copy of everything logged so far.
func (s *MemoryStorage) TrafficEntries() []models.TrafficEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TrafficEntry, len(s.traffic))
	copy(out, s.traffic)
	return out
}

func (s *MemoryStorage) BumpDailyStats(date string, delta models.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.daily[date]
	if !exists {
		stats = &models.DailyStats{Date: date}
		s.daily[date] = stats
	}
	stats.Messages += delta.Messages
	stats.MediaSent += delta.MediaSent
	stats.BytesSent += delta.BytesSent
	stats.AssistantCalls += delta.AssistantCalls
	stats.BlockedUsers += delta.BlockedUsers
	stats.NewUsers += delta.NewUsers
	return nil
}

func (s *MemoryStorage) GetDailyStats(date string) (models.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stats, exists := s.daily[date]; exists {
		return *stats, nil
	}
	return models.DailyStats{Date: date}, nil
}

func (s *MemoryStorage) TopOperations(date string, limit int) ([]models.OperationTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*models.OperationTotal)
	for _, entry := range s.traffic {
		if entry.At.Format("2006-01-02") != date {
			continue
		}
		t, exists := totals[entry.Operation]
		if !exists {
			t = &models.OperationTotal{Operation: entry.Operation}
			totals[entry.Operation] = t
		}
		t.Count++
		t.Bytes += entry.DataSize
	}

	result := make([]models.OperationTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Bytes > result[j].Bytes })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UTM

func (s *MemoryStorage) SaveUTM(utm models.UserUTM) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.utm[utm.UserID] = utm
	return nil
}

func (s *MemoryStorage) GetUTM(userID int64) (*models.UserUTM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if utm, exists := s.utm[userID]; exists {
		copied := utm
		return &copied, nil
	}
	return nil, nil
}
