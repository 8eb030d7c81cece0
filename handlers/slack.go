package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"slack-code-review/models"
	"slack-code-review/services"
)

// ReviewHandler はSlackからのインタラクションとコマンドを処理する
type ReviewHandler struct {
	Slack       services.SlackAPI
	Messenger   *services.ReviewMessenger
	Notifier    *services.Notifier
	Lister      *services.Lister
	Titles      services.PullRequestTitles
	Completions services.CompletionSink

	SlashCommand string
}

// NewReviewHandler は設定からハンドラを組み立てる
func NewReviewHandler(api services.SlackAPI, store services.CheckpointStore, titles services.PullRequestTitles, channels *services.ChannelDirectory, config *services.Config) *ReviewHandler {
	renderer := services.MessageRenderer{IssueURLPrefix: config.IssueURLPrefix}

	return &ReviewHandler{
		Slack:     api,
		Messenger: &services.ReviewMessenger{Slack: api, Renderer: renderer},
		Notifier:  &services.Notifier{Slack: api, Renderer: renderer, Mode: config.NotifyMode},
		Lister: &services.Lister{
			Slack:    api,
			Store:    store,
			Channels: channels,
			Renderer: renderer,
		},
		Titles:       titles,
		Completions:  services.LogCompletionSink{},
		SlashCommand: config.SlashCommand,
	}
}

// HandleSlackAction はボタン操作とモーダル送信を処理する
func (h *ReviewHandler) HandleSlackAction(c *gin.Context) {
	payloadStr := strings.TrimSpace(c.PostForm("payload"))

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payloadStr), &callback); err != nil {
		log.Printf("invalid interaction payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()

	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		h.handleBlockActions(ctx, &callback)
		c.Status(http.StatusOK)
	case slack.InteractionTypeViewSubmission:
		h.handleViewSubmission(ctx, c, &callback)
	default:
		log.Printf("ignored interaction type: %s", callback.Type)
		c.Status(http.StatusOK)
	}
}

func (h *ReviewHandler) handleBlockActions(ctx context.Context, callback *slack.InteractionCallback) {
	if len(callback.ActionCallback.BlockActions) == 0 {
		return
	}
	blockAction := callback.ActionCallback.BlockActions[0]
	user := callback.User.ID

	action, ok := services.ParseAction(blockAction.ActionID)
	if !ok {
		log.Printf("unknown action_id: %s", blockAction.ActionID)
		return
	}

	fromOverflow := action == services.ActionOverflow
	if fromOverflow {
		action, ok = services.ParseAction(blockAction.SelectedOption.Value)
		if !ok || action == services.ActionOverflow {
			log.Printf("unknown overflow option: %s", blockAction.SelectedOption.Value)
			return
		}
	}

	channelID := callback.Container.ChannelID
	if channelID == "" {
		channelID = callback.Channel.ID
	}
	messageTS := callback.Container.MessageTs
	if messageTS == "" {
		messageTS = callback.Message.Timestamp
	}

	payload, found := models.PayloadFromMetadata(callback.Message.Metadata)
	if !found && action != services.ActionViewCodeReviewThread && action != services.ActionListIncompleteReviews {
		log.Printf("message has no review metadata (channel: %s, ts: %s)", channelID, messageTS)
		return
	}
	snapshot := services.ApplyOrigin(payload, services.Origin{ChannelID: channelID, MessageTS: messageTS})

	log.Printf("slack action received: action=%s, channel=%s, ts=%s, user=%s", action, channelID, messageTS, user)

	switch action {
	case services.ActionClaim, services.ActionUnclaim,
		services.ActionApprove, services.ActionUnapprove,
		services.ActionDecline, services.ActionUndecline,
		services.ActionUnmark:
		h.applyAction(ctx, snapshot, services.ActionInput{Action: action, User: user})
	case services.ActionMark:
		h.openView(ctx, callback.TriggerID, services.MarkReviewModal(snapshot))
	case services.ActionEdit:
		h.openView(ctx, callback.TriggerID, services.EditReviewModal(snapshot))
	case services.ActionComplete:
		if fromOverflow {
			h.openView(ctx, callback.TriggerID, services.CompleteConfirmModal(snapshot))
			return
		}
		// ボタンは確認ダイアログ付きなのでそのまま完了する
		h.completeReview(ctx, snapshot)
	case services.ActionDelete:
		h.openView(ctx, callback.TriggerID, services.DeleteConfirmModal(snapshot))
	case services.ActionListIncompleteReviews:
		if _, err := h.Lister.ListReviews(ctx, channelID, user, services.ListOptions{Post: true}); err != nil {
			log.Printf("list reviews error (channel: %s): %v", channelID, err)
		}
	case services.ActionViewCodeReviewThread, services.ActionOverflow:
		// リンクボタンなので何もしない
	}
}

func (h *ReviewHandler) applyAction(ctx context.Context, prev models.ReviewPayload, in services.ActionInput) {
	next := services.Reduce(&prev, services.Origin{}, in)
	if err := h.Messenger.UpdateReview(ctx, next, false); err != nil {
		log.Printf("review update error (action: %s): %v", in.Action, err)
		return
	}
	h.Notifier.NotifyAll(ctx, in.Action, prev, next, in.User)
}

func (h *ReviewHandler) completeReview(ctx context.Context, p models.ReviewPayload) {
	if err := h.Messenger.UpdateReview(ctx, p, true); err != nil {
		log.Printf("review complete error (channel: %s, ts: %s): %v", p.ChannelID, p.MessageTS, err)
		return
	}
	h.emit(services.CompletionComplete, p)
}

func (h *ReviewHandler) emit(resultType string, p models.ReviewPayload) {
	if h.Completions == nil {
		return
	}
	h.Completions.Emit(services.CompletionResult{Type: resultType, ReviewPayload: p})
}

func (h *ReviewHandler) openView(ctx context.Context, triggerID string, view slack.ModalViewRequest) {
	if _, err := h.Slack.OpenViewContext(ctx, triggerID, view); err != nil {
		log.Printf("views.open error (callback: %s): %v", view.CallbackID, err)
	}
}

func (h *ReviewHandler) handleViewSubmission(ctx context.Context, c *gin.Context, callback *slack.InteractionCallback) {
	view := callback.View
	user := callback.User.ID
	prev := models.PayloadFromPrivateMetadata(view.PrivateMetadata)

	log.Printf("view submission received: callback=%s, user=%s", view.CallbackID, user)

	switch view.CallbackID {
	case services.CreateModalCallbackID, services.EditModalCallbackID:
		fields := services.EditFieldsFromState(view.State)
		if errs := services.ValidateEditFields(fields); len(errs) > 0 {
			c.JSON(http.StatusOK, slack.NewErrorsViewSubmissionResponse(errs))
			return
		}
		if view.CallbackID == services.CreateModalCallbackID {
			h.createReview(ctx, prev.ChannelID, user, fields)
		} else {
			h.editReview(ctx, prev, user, fields)
		}
	case services.MarkModalCallbackID:
		h.applyAction(ctx, prev, services.ActionInput{
			Action: services.ActionMark,
			User:   user,
			Mark:   services.MarkFromState(view.State),
		})
	case services.CompleteModalCallbackID:
		h.completeReview(ctx, prev)
	case services.DeleteModalCallbackID:
		if err := h.Messenger.DeleteReview(ctx, prev); err != nil {
			log.Printf("review delete error (channel: %s, ts: %s): %v", prev.ChannelID, prev.MessageTS, err)
		} else {
			h.emit(services.CompletionDelete, prev)
		}
	default:
		log.Printf("unknown view callback_id: %s", view.CallbackID)
	}

	c.Status(http.StatusOK)
}

func (h *ReviewHandler) createReview(ctx context.Context, channelID, user string, fields services.EditFields) {
	payload := services.Reduce(nil, services.Origin{ChannelID: channelID, Author: user},
		services.ActionInput{Action: services.ActionEdit, User: user, Edit: fields})
	payload.PRTitle = h.pullRequestTitle(ctx, payload.PRURL)

	channel, ts, err := h.Messenger.PostReview(ctx, payload)
	if err != nil {
		log.Printf("review post error (channel: %s): %v", channelID, err)
		return
	}
	log.Printf("review posted: channel=%s, ts=%s, author=%s", channel, ts, user)
}

func (h *ReviewHandler) editReview(ctx context.Context, prev models.ReviewPayload, user string, fields services.EditFields) {
	next := services.Reduce(&prev, services.Origin{}, services.ActionInput{Action: services.ActionEdit, User: user, Edit: fields})
	if next.PRURL != prev.PRURL || next.PRTitle == "" {
		next.PRTitle = h.pullRequestTitle(ctx, next.PRURL)
	}

	if err := h.Messenger.UpdateReview(ctx, next, false); err != nil {
		log.Printf("review update error (action: %s): %v", services.ActionEdit, err)
		return
	}
	h.Notifier.NotifyAll(ctx, services.ActionEdit, prev, next, user)
}

// pullRequestTitle はGitHubのPRタイトルを取得する。取得できない場合は空文字
func (h *ReviewHandler) pullRequestTitle(ctx context.Context, prURL string) string {
	if h.Titles == nil {
		return ""
	}
	if _, _, _, err := services.ParseRepoAndPRNumber(prURL); err != nil {
		return ""
	}

	title, err := h.Titles.PullRequestTitle(ctx, prURL)
	if err != nil {
		log.Printf("pull request title error (url: %s): %v", prURL, err)
		return ""
	}
	return title
}
