package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slack-code-review/models"
	"slack-code-review/services"
	"slack-code-review/services/slacktest"
)

const testPRURL = "https://github.com/owner/repo/pull/42"

type stubTitles struct {
	titles map[string]string
}

func (s stubTitles) PullRequestTitle(ctx context.Context, prURL string) (string, error) {
	title, ok := s.titles[prURL]
	if !ok {
		return "", errors.New("not found")
	}
	return title, nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []services.CompletionResult
}

func (s *recordingSink) Emit(result services.CompletionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

type testEnv struct {
	router  *gin.Engine
	fake    *slacktest.Fake
	handler *ReviewHandler
	sink    *recordingSink
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	services.IsTestMode = true
	t.Cleanup(func() { services.IsTestMode = false })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := services.NewGormCheckpointStore(db)
	require.NoError(t, err)

	fake := slacktest.New()
	config := &services.Config{
		NotifyMode:   services.NotifyModeThread,
		SlashCommand: "/code-review",
	}
	titles := stubTitles{titles: map[string]string{testPRURL: "Add review reminders"}}

	handler := NewReviewHandler(fake, store, titles, services.NewChannelDirectory(fake, time.Minute), config)
	sink := &recordingSink{}
	handler.Completions = sink

	return &testEnv{
		router:  SetupRouter(handler, ""),
		fake:    fake,
		handler: handler,
		sink:    sink,
	}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) interact(t *testing.T, payload map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.postForm(t, "/slack/actions", url.Values{"payload": {string(data)}})
}

func blockAction(user, actionID, selected string, message map[string]interface{}) map[string]interface{} {
	action := map[string]interface{}{
		"action_id": actionID,
		"block_id":  services.ControlsBlockID,
		"type":      "button",
	}
	if selected != "" {
		action["type"] = "overflow"
		action["selected_option"] = map[string]interface{}{"value": selected}
	}

	return map[string]interface{}{
		"type":       "block_actions",
		"user":       map[string]interface{}{"id": user},
		"trigger_id": "trigger-" + actionID,
		"channel":    map[string]interface{}{"id": "C1"},
		"container": map[string]interface{}{
			"type":       "message",
			"channel_id": "C1",
			"message_ts": message["ts"],
		},
		"message": message,
		"actions": []interface{}{action},
	}
}

func viewSubmission(user, callbackID, privateMetadata string, values map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "view_submission",
		"user": map[string]interface{}{"id": user},
		"view": map[string]interface{}{
			"type":             "modal",
			"callback_id":      callbackID,
			"private_metadata": privateMetadata,
			"state":            map[string]interface{}{"values": values},
		},
	}
}

func formValues(priority, issueID, prURL, description string) map[string]interface{} {
	return map[string]interface{}{
		services.PriorityBlockID: map[string]interface{}{
			services.PriorityActionID: map[string]interface{}{
				"type":            "static_select",
				"selected_option": map[string]interface{}{"value": priority},
			},
		},
		services.IssueIDBlockID: map[string]interface{}{
			services.IssueIDActionID: map[string]interface{}{"type": "plain_text_input", "value": issueID},
		},
		services.PRURLBlockID: map[string]interface{}{
			services.PRURLActionID: map[string]interface{}{"type": "plain_text_input", "value": prURL},
		},
		services.PRDescriptionBlockID: map[string]interface{}{
			services.PRDescriptionActionID: map[string]interface{}{"type": "plain_text_input", "value": description},
		},
	}
}

// messageFrom はフェイクに記録された投稿・更新から、Slackが返すメッセージの形を作る
func messageFrom(t *testing.T, call slacktest.Call, ts string) map[string]interface{} {
	t.Helper()

	raw := call.Values.Get("metadata")
	require.NotEmpty(t, raw, "metadata が送信されていません")

	return map[string]interface{}{
		"type":     "message",
		"ts":       ts,
		"metadata": json.RawMessage(raw),
	}
}

func sectionText(t *testing.T, call slacktest.Call) string {
	t.Helper()

	blocks := call.Blocks()
	require.NotEmpty(t, blocks)
	section, ok := blocks[0].(*slack.SectionBlock)
	require.True(t, ok)
	return section.Text.Text
}

func lastCall(t *testing.T, fake *slacktest.Fake, method string) slacktest.Call {
	t.Helper()

	calls := fake.CallsTo(method)
	require.NotEmpty(t, calls, method)
	return calls[len(calls)-1]
}

func postedReview(t *testing.T, env *testEnv) (map[string]interface{}, string) {
	t.Helper()

	env.postForm(t, "/slack/commands", url.Values{
		"command":    {"/code-review"},
		"text":       {""},
		"channel_id": {"C1"},
		"user_id":    {"UA"},
		"trigger_id": {"trigger-command"},
	})
	require.Len(t, env.fake.Views, 1)

	w := env.interact(t, viewSubmission("UA", services.CreateModalCallbackID, env.fake.Views[0].PrivateMetadata,
		formValues(services.PriorityHigh, "ABC-1", testPRURL, "")))
	require.Equal(t, http.StatusOK, w.Code)

	post := lastCall(t, env.fake, "chat.postMessage")
	ts := "1700000000.000001"
	return messageFrom(t, post, ts), ts
}

func TestReviewLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	// 作成
	message, ts := postedReview(t, env)
	post := lastCall(t, env.fake, "chat.postMessage")
	assert.Equal(t, "C1", post.Channel)
	assert.Equal(t, []string{"claim", "overflow"}, services.ControlActionIDs(post.Blocks()))
	assert.Contains(t, post.Values.Get("metadata"), "Add review reminders")

	// クレーム
	w := env.interact(t, blockAction("UB", "claim", "", message))
	require.Equal(t, http.StatusOK, w.Code)

	update := lastCall(t, env.fake, "chat.update")
	assert.Equal(t, ts, update.TS)
	assert.Equal(t, []string{"unclaim", "mark", "approve", "decline", "overflow"}, services.ControlActionIDs(update.Blocks()))

	notification := lastCall(t, env.fake, "chat.postMessage")
	assert.Equal(t, ts, notification.ThreadTS())
	assert.Contains(t, notification.Text(), "<@UB> Claimed the")

	// 別のユーザーが承認すると、作成者とクレーム者の両方に通知が届く
	postsBefore := len(env.fake.CallsTo("chat.postMessage"))
	w = env.interact(t, blockAction("UC", "approve", "", messageFrom(t, update, ts)))
	require.Equal(t, http.StatusOK, w.Code)

	update = lastCall(t, env.fake, "chat.update")
	assert.Equal(t, []string{"unapprove", "complete", "overflow"}, services.ControlActionIDs(update.Blocks()))

	notifications := env.fake.CallsTo("chat.postMessage")[postsBefore:]
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, "C1", n.Channel)
		assert.Equal(t, ts, n.ThreadTS())
		assert.Contains(t, n.Text(), "<@UC> Approved the")
	}
	assert.True(t, strings.HasPrefix(sectionText(t, notifications[0]), ":white_check_mark: <@UA>, "))
	assert.True(t, strings.HasPrefix(sectionText(t, notifications[1]), ":white_check_mark: <@UB>, "))

	// 完了（ボタンは確認ダイアログ付きなので即時に完了する）
	w = env.interact(t, blockAction("UC", "complete", "", messageFrom(t, update, ts)))
	require.Equal(t, http.StatusOK, w.Code)

	update = lastCall(t, env.fake, "chat.update")
	assert.Empty(t, services.ControlActionIDs(update.Blocks()))

	require.Len(t, env.sink.results, 1)
	data, err := json.Marshal(env.sink.results[0])
	require.NoError(t, err)

	// 結果は type とペイロードのフィールドが並んだ1つのオブジェクト
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &result))

	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	assert.ElementsMatch(t, []string{
		"type", "channel_id", "message_ts", "author", "claimer", "approver",
		"priority", "issue_id", "pr_url", "pr_description", "pr_title",
	}, keys)

	assert.Equal(t, services.CompletionComplete, result["type"])
	assert.Equal(t, "UA", result["author"])
	assert.Equal(t, "UB", result["claimer"])
	assert.Equal(t, "UC", result["approver"])
	assert.Equal(t, ts, result["message_ts"])
	assert.Equal(t, "ABC-1", result["issue_id"])
	assert.Equal(t, "Add review reminders", result["pr_title"])
}

func TestCreateReview_ValidationErrors(t *testing.T) {
	env := setupTestEnv(t)

	w := env.interact(t, viewSubmission("UA", services.CreateModalCallbackID, `{"channel_id":"C1"}`,
		formValues(services.PriorityHigh, "", "not-a-url", "")))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ResponseAction string            `json:"response_action"`
		Errors         map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "errors", resp.ResponseAction)
	assert.Contains(t, resp.Errors, services.IssueIDBlockID)
	assert.Contains(t, resp.Errors, services.PRURLBlockID)

	assert.Empty(t, env.fake.CallsTo("chat.postMessage"))
}

func TestMarkFlow(t *testing.T) {
	env := setupTestEnv(t)
	message, ts := postedReview(t, env)

	env.interact(t, blockAction("UB", "claim", "", message))
	claimed := lastCall(t, env.fake, "chat.update")

	// マークボタンはモーダルを開く
	env.interact(t, blockAction("UC", "mark", "", messageFrom(t, claimed, ts)))
	view := env.fake.Views[len(env.fake.Views)-1]
	require.Equal(t, services.MarkModalCallbackID, view.CallbackID)

	postsBefore := len(env.fake.CallsTo("chat.postMessage"))
	w := env.interact(t, viewSubmission("UC", services.MarkModalCallbackID, view.PrivateMetadata, map[string]interface{}{
		services.MarkBlockID: map[string]interface{}{
			services.MarkActionID: map[string]interface{}{
				"type":            "static_select",
				"selected_option": map[string]interface{}{"value": services.MarkNeedsWork},
			},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	update := lastCall(t, env.fake, "chat.update")
	assert.Equal(t, ts, update.TS)
	assert.Equal(t, []string{"unmark", "complete", "overflow"}, services.ControlActionIDs(update.Blocks()))

	// 作成者とクレーム者の両方に通知
	notifications := env.fake.CallsTo("chat.postMessage")[postsBefore:]
	require.Len(t, notifications, 2)
	assert.True(t, strings.HasPrefix(sectionText(t, notifications[0]), ":construction: <@UA>, <@UC> Marked"))
	assert.True(t, strings.HasPrefix(sectionText(t, notifications[1]), ":construction: <@UB>, <@UC> Marked"))
}

func TestOverflowDelete(t *testing.T) {
	env := setupTestEnv(t)
	message, ts := postedReview(t, env)

	env.interact(t, blockAction("UA", "overflow", "delete", message))
	view := env.fake.Views[len(env.fake.Views)-1]
	require.Equal(t, services.DeleteModalCallbackID, view.CallbackID)

	w := env.interact(t, viewSubmission("UA", services.DeleteModalCallbackID, view.PrivateMetadata, nil))
	require.Equal(t, http.StatusOK, w.Code)

	deleted := lastCall(t, env.fake, "chat.delete")
	assert.Equal(t, "C1", deleted.Channel)
	assert.Equal(t, ts, deleted.TS)

	require.Len(t, env.sink.results, 1)
	assert.Equal(t, services.CompletionDelete, env.sink.results[0].Type)
}

func TestOverflowComplete_OpensConfirmation(t *testing.T) {
	env := setupTestEnv(t)
	message, _ := postedReview(t, env)

	env.interact(t, blockAction("UA", "overflow", "complete", message))

	view := env.fake.Views[len(env.fake.Views)-1]
	assert.Equal(t, services.CompleteModalCallbackID, view.CallbackID)
	assert.Empty(t, env.fake.CallsTo("chat.update"))
	assert.Empty(t, env.sink.results)
}

func TestOverflowEdit(t *testing.T) {
	env := setupTestEnv(t)
	message, ts := postedReview(t, env)

	env.interact(t, blockAction("UB", "claim", "", message))
	claimed := lastCall(t, env.fake, "chat.update")

	env.interact(t, blockAction("UA", "overflow", "edit", messageFrom(t, claimed, ts)))
	view := env.fake.Views[len(env.fake.Views)-1]
	require.Equal(t, services.EditModalCallbackID, view.CallbackID)

	w := env.interact(t, viewSubmission("UA", services.EditModalCallbackID, view.PrivateMetadata,
		formValues(services.PriorityLow, "ABC-2", testPRURL, "Now with tests")))
	require.Equal(t, http.StatusOK, w.Code)

	update := lastCall(t, env.fake, "chat.update")
	assert.Equal(t, ts, update.TS)
	assert.Contains(t, update.Values.Get("blocks"), "Now with tests")
	// 編集してもクレームは残る
	assert.Equal(t, []string{"unclaim", "mark", "approve", "decline", "overflow"}, services.ControlActionIDs(update.Blocks()))

	var meta struct {
		EventPayload map[string]interface{} `json:"event_payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(update.Values.Get("metadata")), &meta))
	p := models.PayloadFromMap(meta.EventPayload)
	assert.Equal(t, "ABC-2", p.IssueID)
	assert.Equal(t, services.PriorityLow, p.Priority)
	assert.Equal(t, "UB", p.Claimer)
}

func TestOverflowListIncompleteReviews(t *testing.T) {
	env := setupTestEnv(t)
	message, _ := postedReview(t, env)

	w := env.interact(t, blockAction("UB", "overflow", "list_incomplete_reviews", message))
	require.Equal(t, http.StatusOK, w.Code)

	calls := env.fake.CallsTo("chat.postEphemeral")
	require.Len(t, calls, 1)
	assert.Equal(t, "UB", calls[0].User)
}

func TestHandleSlackAction_UnknownAction(t *testing.T) {
	env := setupTestEnv(t)

	w := env.interact(t, blockAction("UB", "review_take", "", map[string]interface{}{"ts": "1.1"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.fake.Calls)
}

func TestHandleSlackAction_InvalidPayload(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/slack/actions", url.Values{"payload": {"{not json"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSlackAction_MessageWithoutMetadata(t *testing.T) {
	env := setupTestEnv(t)

	w := env.interact(t, blockAction("UB", "claim", "", map[string]interface{}{"type": "message", "ts": "1700000000.000009"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.fake.CallsTo("chat.update"))
}
