package models

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

// CodeReviewEventType はレビューメッセージに付与するメタデータのイベント種別
const CodeReviewEventType = "code_review_event"

// PrivateMetadataMaxLength はSlackが受け付ける private_metadata の最大長
const PrivateMetadataMaxLength = 3000

// DescriptionUnset はユーザーが説明文を明示的に空にしたことを表す番兵値
const DescriptionUnset = "!undefined!"

// ReviewPayload はSlackメッセージのメタデータとして保存されるレビューの状態
// メッセージそのものが唯一の永続レコードになる
type ReviewPayload struct {
	ChannelID     string `json:"channel_id,omitempty"`
	MessageTS     string `json:"message_ts,omitempty"`
	Author        string `json:"author,omitempty"`
	Claimer       string `json:"claimer,omitempty"`
	Marker        string `json:"marker,omitempty"`
	Mark          string `json:"mark,omitempty"`
	Approver      string `json:"approver,omitempty"`
	Decliner      string `json:"decliner,omitempty"`
	Priority      string `json:"priority,omitempty"`
	IssueID       string `json:"issue_id,omitempty"`
	PRURL         string `json:"pr_url,omitempty"`
	PRDescription string `json:"pr_description,omitempty"`
	PRTitle       string `json:"pr_title,omitempty"`
}

// HasDescription は表示すべき説明文があるかどうかを返す
func (p ReviewPayload) HasDescription() bool {
	return p.PRDescription != "" && p.PRDescription != DescriptionUnset
}

// ToMap は空のフィールドを省いたマップに変換する
func (p ReviewPayload) ToMap() map[string]interface{} {
	fields := map[string]string{
		"channel_id":     p.ChannelID,
		"message_ts":     p.MessageTS,
		"author":         p.Author,
		"claimer":        p.Claimer,
		"marker":         p.Marker,
		"mark":           p.Mark,
		"approver":       p.Approver,
		"decliner":       p.Decliner,
		"priority":       p.Priority,
		"issue_id":       p.IssueID,
		"pr_url":         p.PRURL,
		"pr_description": p.PRDescription,
		"pr_title":       p.PRTitle,
	}

	m := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if value != "" {
			m[key] = value
		}
	}
	return m
}

// ToMetadata はメッセージに添付するメタデータを作成する
func (p ReviewPayload) ToMetadata() slack.SlackMetadata {
	return slack.SlackMetadata{
		EventType:    CodeReviewEventType,
		EventPayload: p.ToMap(),
	}
}

// PayloadFromMap はフィールド単位でペイロードを復元する
// 古いメッセージには decliner や marker/mark が無いが、無いフィールドは未設定として扱う
func PayloadFromMap(m map[string]interface{}) ReviewPayload {
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}

	return ReviewPayload{
		ChannelID:     str("channel_id"),
		MessageTS:     str("message_ts"),
		Author:        str("author"),
		Claimer:       str("claimer"),
		Marker:        str("marker"),
		Mark:          str("mark"),
		Approver:      str("approver"),
		Decliner:      str("decliner"),
		Priority:      str("priority"),
		IssueID:       str("issue_id"),
		PRURL:         str("pr_url"),
		PRDescription: str("pr_description"),
		PRTitle:       str("pr_title"),
	}
}

// PayloadFromMetadata はメッセージのメタデータからペイロードを復元する
// レビュー以外のメタデータの場合は ok=false を返す
func PayloadFromMetadata(metadata slack.SlackMetadata) (ReviewPayload, bool) {
	if metadata.EventType != CodeReviewEventType || metadata.EventPayload == nil {
		return ReviewPayload{}, false
	}
	return PayloadFromMap(metadata.EventPayload), true
}

// PrivateMetadata はモーダルの private_metadata に載せるJSON文字列を返す
// 上限を超える場合は説明文の末尾を削って PrivateMetadataMaxLength に収める
func (p ReviewPayload) PrivateMetadata() string {
	data, err := encodePrivateMetadata(p)
	if err != nil {
		log.Printf("private metadata encode error: %v", err)
		return "{}"
	}

	description := []rune(p.PRDescription)
	for len(data) > PrivateMetadataMaxLength && len(description) > 0 {
		// 1文字は1バイト以上なので、超過分の文字数を削れば足りる
		cut := len(data) - PrivateMetadataMaxLength
		if cut > len(description) {
			cut = len(description)
		}
		description = description[:len(description)-cut]
		p.PRDescription = string(description)

		if data, err = encodePrivateMetadata(p); err != nil {
			log.Printf("private metadata encode error: %v", err)
			return "{}"
		}
	}

	if len(data) > PrivateMetadataMaxLength {
		log.Printf("private metadata exceeds %d bytes (channel: %s, ts: %s)", PrivateMetadataMaxLength, p.ChannelID, p.MessageTS)
	}
	return data
}

func encodePrivateMetadata(p ReviewPayload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// < > & を \u003c などに展開しない
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p.ToMap()); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// PayloadFromPrivateMetadata はモーダルの private_metadata からペイロードを復元する
func PayloadFromPrivateMetadata(raw string) ReviewPayload {
	if raw == "" {
		return ReviewPayload{}
	}

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Printf("private metadata decode error: %v", err)
		return ReviewPayload{}
	}
	return PayloadFromMap(m)
}
