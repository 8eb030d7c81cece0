package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"slack-code-review/models"
)

// SlackAPI はこのボットが使うSlack Web APIの一部
// *slack.Client がそのまま満たす
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	DeleteMessageContext(ctx context.Context, channelID, messageTimestamp string) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

var _ SlackAPI = (*slack.Client)(nil)

// IsTestMode が true の場合はSlackの署名検証を行わない
var IsTestMode = false

// NewSlackClient はボットトークンでSlackクライアントを作成する
func NewSlackClient(token string, options ...slack.Option) *slack.Client {
	return slack.New(token, options...)
}

// ValidateSlackRequest はSlackからのリクエスト署名を検証する
func ValidateSlackRequest(r *http.Request, body []byte, signingSecret string) bool {
	if IsTestMode {
		return true
	}
	if signingSecret == "" {
		return false
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	return verifier.Ensure() == nil
}

// ReviewMessenger はレビューメッセージの投稿・更新・削除を行う
type ReviewMessenger struct {
	Slack    SlackAPI
	Renderer MessageRenderer
}

// PostReview は新しいレビューメッセージを投稿し、投稿先のチャンネルとtsを返す
func (m *ReviewMessenger) PostReview(ctx context.Context, p models.ReviewPayload) (string, string, error) {
	channel, ts, err := m.Slack.PostMessageContext(ctx, p.ChannelID,
		slack.MsgOptionBlocks(m.Renderer.Render(p, false)...),
		slack.MsgOptionText(m.Renderer.FallbackText(p), false),
		slack.MsgOptionMetadata(p.ToMetadata()),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	if err != nil {
		return "", "", fmt.Errorf("chat.postMessage: %w", err)
	}
	return channel, ts, nil
}

// UpdateReview はメッセージを上書きする
// 直前のイベントのペイロードから作った内容で上書きするため、同時操作では後勝ちになる
func (m *ReviewMessenger) UpdateReview(ctx context.Context, p models.ReviewPayload, completed bool) error {
	_, _, _, err := m.Slack.UpdateMessageContext(ctx, p.ChannelID, p.MessageTS,
		slack.MsgOptionBlocks(m.Renderer.Render(p, completed)...),
		slack.MsgOptionText(m.Renderer.FallbackText(p), false),
		slack.MsgOptionMetadata(p.ToMetadata()),
	)
	if err != nil {
		return fmt.Errorf("chat.update: %w", err)
	}
	return nil
}

// DeleteReview はメッセージを削除する
func (m *ReviewMessenger) DeleteReview(ctx context.Context, p models.ReviewPayload) error {
	if _, _, err := m.Slack.DeleteMessageContext(ctx, p.ChannelID, p.MessageTS); err != nil {
		return fmt.Errorf("chat.delete: %w", err)
	}
	return nil
}
