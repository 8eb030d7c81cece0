package models

import (
	"time"
)

// ReviewCheckpoint はチャンネルごとに「最も古いレビューのts」を保持する
// 履歴スキャンの開始位置を絞り込むための補助データで、レビュー自体のレコードではない
type ReviewCheckpoint struct {
	ID        string `gorm:"primaryKey"` // "oldest_review_" + チャンネルID
	Timestamp string // SlackのメッセージTS
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckpointID はチャンネルIDからチェックポイントのキーを作る
func CheckpointID(channelID string) string {
	return "oldest_review_" + channelID
}
