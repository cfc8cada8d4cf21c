package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/avetra/funnel-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Engagement

func (s *PostgresStorage) TouchEngagement(userID int64, at time.Time) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO user_engagement (user_id, last_activity_at, stage, created_at)
		VALUES ($1, $2, 0, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_activity_at = EXCLUDED.last_activity_at, stage = 0
		RETURNING (xmax = 0)`

	var created bool
	if err := s.db.QueryRow(query, userID, at).Scan(&created); err != nil {
		return false, fmt.Errorf("error touching engagement: %w", err)
	}
	return created, nil
}

func (s *PostgresStorage) EngagementSnapshot() ([]models.UserEngagement, error) {
	query := `
		SELECT user_id, last_activity_at, stage, funnel_done, created_at
		FROM user_engagement`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying engagement: %w", err)
	}
	defer rows.Close()

	var users []models.UserEngagement
	for rows.Next() {
		var u models.UserEngagement
		if err := rows.Scan(&u.UserID, &u.LastActivityAt, &u.Stage, &u.FunnelDone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning engagement row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) SetStage(userID int64, stage int) error {
	query := `UPDATE user_engagement SET stage = $1 WHERE user_id = $2 AND stage < $1`

	if _, err := s.db.Exec(query, stage, userID); err != nil {
		return fmt.Errorf("error setting stage: %w", err)
	}
	return nil
}

func (s *PostgresStorage) MarkFunnelDone(userID int64) error {
	query := `
		INSERT INTO user_engagement (user_id, last_activity_at, stage, funnel_done, created_at)
		VALUES ($1, NOW(), 0, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET funnel_done = TRUE`

	if _, err := s.db.Exec(query, userID); err != nil {
		return fmt.Errorf("error marking funnel done: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IsFunnelDone(userID int64) (bool, error) {
	var done bool
	err := s.db.QueryRow(`SELECT funnel_done FROM user_engagement WHERE user_id = $1`, userID).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying funnel state: %w", err)
	}
	return done, nil
}

// Subscriptions

func (s *PostgresStorage) GetSubscription(userID int64) (*models.Subscription, error) {
	query := `
		SELECT user_id, tariff_type, payment_date, expires_at, is_active,
		       COALESCE(payment_ref, ''), basic_count, vip_count, course_count
		FROM user_subscriptions
		WHERE user_id = $1`

	sub := &models.Subscription{}
	err := s.db.QueryRow(query, userID).Scan(
		&sub.UserID, &sub.Tariff, &sub.PaymentDate, &sub.ExpiresAt, &sub.Active,
		&sub.PaymentRef, &sub.BasicCount, &sub.VIPCount, &sub.CourseCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStorage) PutSubscription(sub models.Subscription) error {
	query := `
		INSERT INTO user_subscriptions
			(user_id, tariff_type, payment_date, expires_at, is_active, payment_ref,
			 basic_count, vip_count, course_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			tariff_type = EXCLUDED.tariff_type,
			payment_date = EXCLUDED.payment_date,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			payment_ref = EXCLUDED.payment_ref,
			basic_count = EXCLUDED.basic_count,
			vip_count = EXCLUDED.vip_count,
			course_count = EXCLUDED.course_count`

	_, err := s.db.Exec(query,
		sub.UserID, sub.Tariff, sub.PaymentDate, sub.ExpiresAt, sub.Active,
		sub.PaymentRef, sub.BasicCount, sub.VIPCount, sub.CourseCount,
	)
	if err != nil {
		return fmt.Errorf("error saving subscription: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ActiveSubscriberIDs(now time.Time) ([]int64, error) {
	query := `SELECT user_id FROM user_subscriptions WHERE expires_at > $1 AND is_active = TRUE`
	return s.queryIDs(query, now)
}

func (s *PostgresStorage) AllUserIDs() ([]int64, error) {
	query := `
		SELECT DISTINCT user_id FROM (
			SELECT user_id FROM user_engagement
			UNION
			SELECT user_id FROM user_utm
			UNION
			SELECT user_id FROM user_subscriptions
			UNION
			SELECT user_id FROM assistant_threads
			UNION
			SELECT user_id FROM referral_accounts
		) all_users`
	return s.queryIDs(query)
}

func (s *PostgresStorage) CourseUserIDs() ([]int64, error) {
	query := `
		SELECT DISTINCT user_id FROM user_subscriptions
		WHERE tariff_type = 'course' OR course_count > 0`
	return s.queryIDs(query)
}

func (s *PostgresStorage) PaidUserIDs() ([]int64, error) {
	query := `
		SELECT DISTINCT user_id FROM user_subscriptions
		WHERE tariff_type IN ('basic', 'vip') OR basic_count > 0 OR vip_count > 0`
	return s.queryIDs(query)
}

func (s *PostgresStorage) VIPUserIDs() ([]int64, error) {
	query := `
		SELECT DISTINCT user_id FROM user_subscriptions
		WHERE tariff_type = 'vip' OR vip_count > 0`
	return s.queryIDs(query)
}

func (s *PostgresStorage) queryIDs(query string, args ...any) ([]int64, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Assistant threads

func (s *PostgresStorage) GetThread(userID int64) (*models.AssistantThread, error) {
	query := `SELECT user_id, thread_id, last_reset_date, updated_at FROM assistant_threads WHERE user_id = $1`

	t := &models.AssistantThread{}
	err := s.db.QueryRow(query, userID).Scan(&t.UserID, &t.ThreadID, &t.LastResetDate, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %w", err)
	}
	return t, nil
}

func (s *PostgresStorage) SaveThread(userID int64, threadID, resetDate string) error {
	query := `
		INSERT INTO assistant_threads (user_id, thread_id, last_reset_date, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			last_reset_date = EXCLUDED.last_reset_date,
			updated_at = NOW()`

	if _, err := s.db.Exec(query, userID, threadID, resetDate); err != nil {
		return fmt.Errorf("error saving thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteThread(userID int64) error {
	if _, err := s.db.Exec(`DELETE FROM assistant_threads WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteThreadsNotOn(date string) (int, error) {
	result, err := s.db.Exec(`DELETE FROM assistant_threads WHERE last_reset_date <> $1`, date)
	if err != nil {
		return 0, fmt.Errorf("error deleting stale threads: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(affected), nil
}

// Referrals

func (s *PostgresStorage) CreateReferralAccount(acc models.ReferralAccount) error {
	query := `
		INSERT INTO referral_accounts (user_id, email, referrer_id, balance, awaiting_referrer, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := s.db.Exec(query, acc.UserID, acc.Email, acc.ReferrerID, acc.Balance, acc.AwaitingReferrer, acc.RegisteredAt)
	if err != nil {
		return fmt.Errorf("error creating referral account: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetReferralAccount(userID int64) (*models.ReferralAccount, error) {
	query := `
		SELECT user_id, email, referrer_id, balance, awaiting_referrer, registered_at
		FROM referral_accounts WHERE user_id = $1`

	acc := &models.ReferralAccount{}
	err := s.db.QueryRow(query, userID).Scan(
		&acc.UserID, &acc.Email, &acc.ReferrerID, &acc.Balance, &acc.AwaitingReferrer, &acc.RegisteredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying referral account: %w", err)
	}
	return acc, nil
}

func (s *PostgresStorage) UpdateReferralEmail(userID int64, email string) error {
	if _, err := s.db.Exec(`UPDATE referral_accounts SET email = $1 WHERE user_id = $2`, email, userID); err != nil {
		return fmt.Errorf("error updating referral email: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetReferrer(userID, referrerID int64) error {
	query := `UPDATE referral_accounts SET referrer_id = $1 WHERE user_id = $2 AND referrer_id = 0`
	if _, err := s.db.Exec(query, referrerID, userID); err != nil {
		return fmt.Errorf("error setting referrer: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AddReferralBonus(referrerID, referredID int64, amount int, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting bonus transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO referral_bonuses (referrer_id, referred_id, amount, created_at)
		VALUES ($1, $2, $3, $4)`, referrerID, referredID, amount, at)
	if err != nil {
		return fmt.Errorf("error inserting bonus ledger entry: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE referral_accounts SET balance = balance + $1 WHERE user_id = $2`, amount, referrerID)
	if err != nil {
		return fmt.Errorf("error incrementing referrer balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing bonus: %w", err)
	}
	return nil
}

func (s *PostgresStorage) HasReferralBonus(referrerID, referredID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM referral_bonuses WHERE referrer_id = $1 AND referred_id = $2
		)`, referrerID, referredID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking bonus ledger: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) UseReferralBalance(userID int64, amount int) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE referral_accounts SET balance = balance - $1
		WHERE user_id = $2 AND balance >= $1`, amount, userID)
	if err != nil {
		return false, fmt.Errorf("error debiting referral balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage) SetAwaitingReferrer(userID int64, waiting bool) error {
	if _, err := s.db.Exec(`UPDATE referral_accounts SET awaiting_referrer = $1 WHERE user_id = $2`, waiting, userID); err != nil {
		return fmt.Errorf("error setting awaiting flag: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IsAwaitingReferrer(userID int64) (bool, error) {
	var waiting bool
	err := s.db.QueryRow(`SELECT awaiting_referrer FROM referral_accounts WHERE user_id = $1`, userID).Scan(&waiting)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying awaiting flag: %w", err)
	}
	return waiting, nil
}

// Payment dedup ledger

func (s *PostgresStorage) MarkPaymentProcessed(token string, at time.Time) (bool, error) {
	result, err := s.db.Exec(`
		INSERT INTO processed_payments (token, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (token) DO NOTHING`, token, at)
	if err != nil {
		return false, fmt.Errorf("error recording processed payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// Blocked users

func (s *PostgresStorage) BlockUser(userID int64, reason string) error {
	query := `
		INSERT INTO blocked_users (user_id, reason, blocked_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET reason = EXCLUDED.reason`

	if _, err := s.db.Exec(query, userID, reason); err != nil {
		return fmt.Errorf("error blocking user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IsBlocked(userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM blocked_users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking blocked user: %w", err)
	}
	return exists, nil
}

// Media cache

func (s *PostgresStorage) GetFileID(path string) (string, error) {
	var fileID string
	err := s.db.QueryRow(`SELECT file_id FROM media_files WHERE file_path = $1`, path).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying media cache: %w", err)
	}
	return fileID, nil
}

func (s *PostgresStorage) SaveFileID(path, fileID, kind string, size int64) error {
	query := `
		INSERT INTO media_files (file_path, file_id, file_type, file_size, last_used)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (file_path) DO UPDATE SET
			file_id = EXCLUDED.file_id,
			file_type = EXCLUDED.file_type,
			file_size = EXCLUDED.file_size,
			last_used = NOW()`

	if _, err := s.db.Exec(query, path, fileID, kind, size); err != nil {
		return fmt.Errorf("error saving media cache entry: %w", err)
	}
	return nil
}

// Promo nudge

func (s *PostgresStorage) MarkPromoSent(userID int64, content string, at time.Time) error {
	query := `
		INSERT INTO promo_sent (user_id, content, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, sent_at = EXCLUDED.sent_at`

	if _, err := s.db.Exec(query, userID, content, at); err != nil {
		return fmt.Errorf("error marking promo sent: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IsPromoSent(userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM promo_sent WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking promo sent: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) PromoCandidates(seenBefore, now time.Time) ([]int64, error) {
	query := `
		SELECT user_id FROM user_engagement
		WHERE created_at < $1
		  AND user_id NOT IN (
			SELECT user_id FROM user_subscriptions WHERE expires_at > $2 AND is_active = TRUE
		  )
		  AND user_id NOT IN (SELECT user_id FROM promo_sent)`
	return s.queryIDs(query, seenBefore, now)
}

func (s *PostgresStorage) ResetPromoHistory() (int, error) {
	result, err := s.db.Exec(`DELETE FROM promo_sent`)
	if err != nil {
		return 0, fmt.Errorf("error resetting promo history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStorage) PromoResetDoneOn(date string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM promo_resets WHERE reset_date = $1)`, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking promo reset marker: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) MarkPromoResetDone(date string, at time.Time) error {
	query := `
		INSERT INTO promo_resets (reset_date, done_at)
		VALUES ($1, $2)
		ON CONFLICT (reset_date) DO NOTHING`

	if _, err := s.db.Exec(query, date, at); err != nil {
		return fmt.Errorf("error marking promo reset done: %w", err)
	}
	return nil
}

// Broadcasts

func (s *PostgresStorage) CreateBroadcast(job models.BroadcastJob) error {
	query := `
		INSERT INTO broadcasts
			(id, admin_id, audience, message_text, media_type, total_recipients, sent_count, error_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(query,
		job.ID, job.AdminID, job.Audience, job.MessageText, job.MediaType,
		job.Recipients, job.Sent, job.Errors, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating broadcast: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateBroadcast(id string, sent, errCount int, completedAt *time.Time) error {
	query := `
		UPDATE broadcasts SET sent_count = $1, error_count = $2, completed_at = $3 WHERE id = $4`

	if _, err := s.db.Exec(query, sent, errCount, completedAt, id); err != nil {
		return fmt.Errorf("error updating broadcast: %w", err)
	}
	return nil
}

// Stats

func (s *PostgresStorage) LogTraffic(entry models.TrafficEntry) error {
	query := `
		INSERT INTO traffic_log (operation, user_id, data_type, data_size, file_path, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.Exec(query,
		entry.Operation, entry.UserID, entry.DataType, entry.DataSize,
		entry.FilePath, entry.Status, entry.Error, entry.At,
	)
	if err != nil {
		return fmt.Errorf("error logging traffic: %w", err)
	}
	return nil
}

func (s *PostgresStorage) BumpDailyStats(date string, delta models.DailyStats) error {
	query := `
		INSERT INTO daily_stats (date, messages, media_sent, bytes_sent, assistant_calls, blocked_users, new_users)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			messages = daily_stats.messages + EXCLUDED.messages,
			media_sent = daily_stats.media_sent + EXCLUDED.media_sent,
			bytes_sent = daily_stats.bytes_sent + EXCLUDED.bytes_sent,
			assistant_calls = daily_stats.assistant_calls + EXCLUDED.assistant_calls,
			blocked_users = daily_stats.blocked_users + EXCLUDED.blocked_users,
			new_users = daily_stats.new_users + EXCLUDED.new_users`

	_, err := s.db.Exec(query, date,
		delta.Messages, delta.MediaSent, delta.BytesSent, delta.AssistantCalls,
		delta.BlockedUsers, delta.NewUsers,
	)
	if err != nil {
		return fmt.Errorf("error updating daily stats: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetDailyStats(date string) (models.DailyStats, error) {
	query := `
		SELECT date, messages, media_sent, bytes_sent, assistant_calls, blocked_users, new_users
		FROM daily_stats WHERE date = $1`

	stats := models.DailyStats{Date: date}
	err := s.db.QueryRow(query, date).Scan(
		&stats.Date, &stats.Messages, &stats.MediaSent, &stats.BytesSent,
		&stats.AssistantCalls, &stats.BlockedUsers, &stats.NewUsers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DailyStats{Date: date}, nil
	}
	if err != nil {
		return models.DailyStats{}, fmt.Errorf("error querying daily stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStorage) TopOperations(date string, limit int) ([]models.OperationTotal, error) {
	query := `
		SELECT operation, COUNT(*), COALESCE(SUM(data_size), 0)
		FROM traffic_log
		WHERE to_char(created_at, 'YYYY-MM-DD') = $1
		GROUP BY operation
		ORDER BY SUM(data_size) DESC
		LIMIT $2`

	rows, err := s.db.Query(query, date, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying top operations: %w", err)
	}
	defer rows.Close()

	var totals []models.OperationTotal
	for rows.Next() {
		var t models.OperationTotal
		if err := rows.Scan(&t.Operation, &t.Count, &t.Bytes); err != nil {
			return nil, fmt.Errorf("error scanning operation total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// UTM

func (s *PostgresStorage) SaveUTM(utm models.UserUTM) error {
	query := `
		INSERT INTO user_utm (user_id, utm_source, utm_medium, utm_campaign, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			utm_source = EXCLUDED.utm_source,
			utm_medium = EXCLUDED.utm_medium,
			utm_campaign = EXCLUDED.utm_campaign,
			updated_at = NOW()`

	if _, err := s.db.Exec(query, utm.UserID, utm.Source, utm.Medium, utm.Campaign); err != nil {
		return fmt.Errorf("error saving utm tags: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetUTM(userID int64) (*models.UserUTM, error) {
	query := `SELECT user_id, utm_source, utm_medium, utm_campaign FROM user_utm WHERE user_id = $1`

	utm := &models.UserUTM{}
	err := s.db.QueryRow(query, userID).Scan(&utm.UserID, &utm.Source, &utm.Medium, &utm.Campaign)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying utm tags: %w", err)
	}
	return utm, nil
}
