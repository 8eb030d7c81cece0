package services

import (
	"encoding/json"
	"log"

	"slack-code-review/models"
)

const (
	CompletionComplete = "complete"
	CompletionDelete   = "delete"
)

// CompletionResult は完了・削除されたレビューの最終状態
// JSONではペイロードのフィールドが type と同じ階層に並ぶ
type CompletionResult struct {
	Type string `json:"type"`
	models.ReviewPayload
}

// CompletionSink は CompletionResult の送り先
type CompletionSink interface {
	Emit(result CompletionResult)
}

// LogCompletionSink は結果をJSONでログに出す
type LogCompletionSink struct{}

func (LogCompletionSink) Emit(result CompletionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("completion marshal error: %v", err)
		return
	}
	log.Printf("review %s: %s", result.Type, data)
}
