package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"slack-code-review/models"
)

// DefaultCheckpoint はチェックポイントが無い場合のスキャン開始位置（履歴の先頭）
const DefaultCheckpoint = "0"

// CheckpointStore はチャンネルごとの「最も古いレビューのts」を保存する
type CheckpointStore interface {
	OldestReview(ctx context.Context, channelID string) (string, error)
	UpdateOldestReview(ctx context.Context, channelID, timestamp string) error
}

// GormCheckpointStore は gorm で CheckpointStore を実装する
type GormCheckpointStore struct {
	DB *gorm.DB
}

// NewGormCheckpointStore はテーブルをマイグレーションしてストアを返す
func NewGormCheckpointStore(db *gorm.DB) (*GormCheckpointStore, error) {
	if err := db.AutoMigrate(&models.ReviewCheckpoint{}); err != nil {
		return nil, fmt.Errorf("checkpoint migrate: %w", err)
	}
	return &GormCheckpointStore{DB: db}, nil
}

func (s *GormCheckpointStore) OldestReview(ctx context.Context, channelID string) (string, error) {
	var checkpoint models.ReviewCheckpoint
	err := s.DB.WithContext(ctx).Where("id = ?", models.CheckpointID(channelID)).First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultCheckpoint, nil
	}
	if err != nil {
		return DefaultCheckpoint, err
	}
	if checkpoint.Timestamp == "" {
		return DefaultCheckpoint, nil
	}
	return checkpoint.Timestamp, nil
}

func (s *GormCheckpointStore) UpdateOldestReview(ctx context.Context, channelID, timestamp string) error {
	checkpoint := models.ReviewCheckpoint{
		ID:        models.CheckpointID(channelID),
		Timestamp: timestamp,
		UpdatedAt: time.Now(),
	}
	return s.DB.WithContext(ctx).Save(&checkpoint).Error
}

// CompareTimestamps はSlackのts（"秒.マイクロ秒"）を比較する
// float に変換すると桁落ちするため、秒と小数部を別々に比較する
func CompareTimestamps(a, b string) int {
	aSec, aFrac := splitTimestamp(a)
	bSec, bFrac := splitTimestamp(b)

	switch {
	case aSec < bSec:
		return -1
	case aSec > bSec:
		return 1
	case aFrac < bFrac:
		return -1
	case aFrac > bFrac:
		return 1
	}
	return 0
}

func splitTimestamp(ts string) (int64, int64) {
	secPart, fracPart, _ := strings.Cut(strings.TrimSpace(ts), ".")
	sec, _ := strconv.ParseInt(secPart, 10, 64)

	// 小数部は6桁にそろえてから比較する
	for len(fracPart) < 6 {
		fracPart += "0"
	}
	frac, _ := strconv.ParseInt(fracPart[:6], 10, 64)
	return sec, frac
}
