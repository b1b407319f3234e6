package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapscore-bot/internal/models"
)

var ErrNotFound = errors.New("record not found")

type ReferralOutcome int

const (
	ReferralCredited ReferralOutcome = iota + 1
	ReferralNoReferrer
	ReferralReferrerMissing
	ReferralAlreadyConfirmed
)

type ReferralStats struct {
	Invited   int64 `json:"invited"`
	Confirmed int64 `json:"confirmed"`
	Earned    int64 `json:"earned"`
}

// Store is the ledger: users, per-day scores, channels, reward claims and meta.
// Every method that credits tokens does so in the same transaction that records the claim.
type Store interface {
	GetOrCreateUser(ctx context.Context, id int64, username, displayName string) (*models.User, bool, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	LinkReferrer(ctx context.Context, userID, referrerID int64) (bool, error)

	UpsertBestScore(ctx context.Context, userID int64, day string, score int64) error
	DayScores(ctx context.Context, day string) ([]models.ScoreRow, error)

	HasClaim(ctx context.Context, userID int64, class models.ClaimClass, key string) (bool, error)
	GrantReward(ctx context.Context, claim *models.RewardClaim) (bool, error)
	GrantBatch(ctx context.Context, claims []models.RewardClaim, meta map[string]string) error
	ConfirmReferral(ctx context.Context, newUserID, amount int64) (int64, ReferralOutcome, error)
	ReferralStats(ctx context.Context, referrerID int64) (*ReferralStats, error)

	Channel(ctx context.Context, username string) (*models.Channel, error)
	Channels(ctx context.Context) ([]models.Channel, error)
	UpsertChannel(ctx context.Context, username string, reward int64) (*models.Channel, error)

	Meta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}

type store struct {
	db *gorm.DB
}

func New(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) GetOrCreateUser(ctx context.Context, id int64, username, displayName string) (*models.User, bool, error) {
	user := models.User{ID: id, Username: username, DisplayName: displayName}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create user %d: %w", id, res.Error)
	}
	created := res.RowsAffected == 1

	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load user %d: %w", id, err)
	}

	if created {
		return &user, true, nil
	}

	updates := map[string]interface{}{}
	if username != "" && username != user.Username {
		updates["username"] = username
	}
	if displayName != "" && displayName != user.DisplayName {
		updates["display_name"] = displayName
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("failed to update user %d: %w", id, err)
		}
		if username != "" {
			user.Username = username
		}
		if displayName != "" {
			user.DisplayName = displayName
		}
	}
	return &user, false, nil
}

func (s *store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// LinkReferrer sets the referrer once. Self-links and unknown referrers are ignored.
// The referrer must exist when the link is made, so a link to a missing user is never stored.
// ConfirmReferral checks again and reports ReferralReferrerMissing if the referrer row is absent.
func (s *store) LinkReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	if userID == referrerID {
		return false, nil
	}

	var linked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&models.User{}).Where("id = ?", referrerID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return nil
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND referrer_id IS NULL", userID).
			Update("referrer_id", referrerID)
		if res.Error != nil {
			return res.Error
		}
		linked = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to link referrer for %d: %w", userID, err)
	}
	return linked, nil
}

// UpsertBestScore keeps the maximum score per (user, day) in a single statement.
func (s *store) UpsertBestScore(ctx context.Context, userID int64, day string, score int64) error {
	row := models.DailyScore{UserID: userID, Day: day, Score: score}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"score":      gorm.Expr("CASE WHEN excluded.score > daily_scores.score THEN excluded.score ELSE daily_scores.score END"),
			"updated_at": gorm.Expr("CASE WHEN excluded.score > daily_scores.score THEN excluded.updated_at ELSE daily_scores.updated_at END"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert score for %d on %s: %w", userID, day, err)
	}
	return nil
}

func (s *store) DayScores(ctx context.Context, day string) ([]models.ScoreRow, error) {
	var rows []models.ScoreRow
	err := s.db.WithContext(ctx).
		Table("daily_scores").
		Select("daily_scores.user_id, daily_scores.score, COALESCE(users.display_name, '') AS display_name").
		Joins("LEFT JOIN users ON users.id = daily_scores.user_id").
		Where("daily_scores.day = ?", day).
		Order("daily_scores.score DESC, daily_scores.user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load scores for %s: %w", day, err)
	}
	return rows, nil
}

func (s *store) HasClaim(ctx context.Context, userID int64, class models.ClaimClass, key string) (bool, error) {
	var cnt int64
	err := s.db.WithContext(ctx).
		Model(&models.RewardClaim{}).
		Where("user_id = ? AND class = ? AND claim_key = ?", userID, class, key).
		Count(&cnt).Error
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return cnt > 0, nil
}

// GrantReward records the claim and credits the user atomically.
// Returns false when the claim already exists; nothing is credited in that case.
func (s *store) GrantReward(ctx context.Context, claim *models.RewardClaim) (bool, error) {
	var granted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := insertClaim(tx, claim)
		if err != nil || !ok {
			return err
		}
		if err := credit(tx, claim.UserID, claim.Amount); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to grant %s reward to %d: %w", claim.Class, claim.UserID, err)
	}
	return granted, nil
}

// GrantBatch credits every claim and writes meta in one transaction; a duplicate claim aborts the batch.
func (s *store) GrantBatch(ctx context.Context, claims []models.RewardClaim, meta map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range claims {
			ok, err := insertClaim(tx, &claims[i])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("duplicate %s claim %q for %d", claims[i].Class, claims[i].Key, claims[i].UserID)
			}
			if err := credit(tx, claims[i].UserID, claims[i].Amount); err != nil {
				return err
			}
		}
		for k, v := range meta {
			if err := setMeta(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *store) ConfirmReferral(ctx context.Context, newUserID, amount int64) (int64, ReferralOutcome, error) {
	var (
		referrerID int64
		outcome    ReferralOutcome
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, "id = ?", newUserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome = ReferralNoReferrer
			return nil
		}
		if err != nil {
			return err
		}
		if user.ReferrerID == nil {
			outcome = ReferralNoReferrer
			return nil
		}
		referrerID = *user.ReferrerID
		if user.ReferralConfirmed {
			outcome = ReferralAlreadyConfirmed
			return nil
		}

		var cnt int64
		if err := tx.Model(&models.User{}).Where("id = ?", referrerID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			outcome = ReferralReferrerMissing
			return nil
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND referral_confirmed = ?", newUserID, false).
			Update("referral_confirmed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = ReferralAlreadyConfirmed
			return nil
		}

		claim := models.RewardClaim{
			UserID: referrerID,
			Class:  models.ClaimReferral,
			Key:    strconv.FormatInt(newUserID, 10),
			Amount: amount,
		}
		ok, err := insertClaim(tx, &claim)
		if err != nil {
			return err
		}
		if !ok {
			outcome = ReferralAlreadyConfirmed
			return nil
		}
		if err := credit(tx, referrerID, amount); err != nil {
			return err
		}
		outcome = ReferralCredited
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to confirm referral for %d: %w", newUserID, err)
	}
	return referrerID, outcome, nil
}

func (s *store) ReferralStats(ctx context.Context, referrerID int64) (*ReferralStats, error) {
	var stats ReferralStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("referrer_id = ?", referrerID).Count(&stats.Invited).Error; err != nil {
		return nil, fmt.Errorf("failed to count invited users: %w", err)
	}
	if err := db.Model(&models.User{}).Where("referrer_id = ? AND referral_confirmed = ?", referrerID, true).Count(&stats.Confirmed).Error; err != nil {
		return nil, fmt.Errorf("failed to count confirmed users: %w", err)
	}
	if err := db.Model(&models.RewardClaim{}).
		Where("user_id = ? AND class = ?", referrerID, models.ClaimReferral).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.Earned).Error; err != nil {
		return nil, fmt.Errorf("failed to sum referral earnings: %w", err)
	}
	return &stats, nil
}

func (s *store) Channel(ctx context.Context, username string) (*models.Channel, error) {
	var ch models.Channel
	err := s.db.WithContext(ctx).First(&ch, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", username, err)
	}
	return &ch, nil
}

func (s *store) Channels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

func (s *store) UpsertChannel(ctx context.Context, username string, reward int64) (*models.Channel, error) {
	ch := models.Channel{Username: username, Reward: reward}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"reward", "updated_at"}),
	}).Create(&ch).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert channel %s: %w", username, err)
	}
	return s.Channel(ctx, username)
}

func (s *store) Meta(ctx context.Context, key string) (string, error) {
	var m models.Meta
	err := s.db.WithContext(ctx).First(&m, "meta_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return m.Value, nil
}

func (s *store) SetMeta(ctx context.Context, key, value string) error {
	if err := setMeta(s.db.WithContext(ctx), key, value); err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

func insertClaim(tx *gorm.DB, claim *models.RewardClaim) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(claim)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func credit(tx *gorm.DB, userID, amount int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("tokens", gorm.Expr("tokens + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func setMeta(tx *gorm.DB, key, value string) error {
	m := models.Meta{Key: key, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}
