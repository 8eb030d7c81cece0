// Package slacktest はテスト用のSlack Web APIフェイクを提供する
package slacktest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// Call は記録されたAPI呼び出し
type Call struct {
	Method  string
	Channel string
	TS      string
	User    string
	Values  url.Values
}

// Blocks は送信されたブロックを復元する
func (c Call) Blocks() []slack.Block {
	raw := c.Values.Get("blocks")
	if raw == "" {
		return nil
	}
	var blocks slack.Blocks
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		return nil
	}
	return blocks.BlockSet
}

// Text は送信されたフォールバックテキスト
func (c Call) Text() string {
	return c.Values.Get("text")
}

// ThreadTS はスレッド返信先のts
func (c Call) ThreadTS() string {
	return c.Values.Get("thread_ts")
}

// Fake はメモリ上で動く services.SlackAPI の実装
type Fake struct {
	mu sync.Mutex

	Calls []Call
	Views []slack.ModalViewRequest

	// HistoryPages は conversations.history が順に返すページ
	HistoryPages []slack.GetConversationHistoryResponse
	// HistoryErrPage が1以上なら、そのページ（1始まり）で HistoryErr を返す
	HistoryErrPage  int
	HistoryErr      error
	HistoryRequests []slack.GetConversationHistoryParameters

	PermalinkErrs map[string]error
	PostErr       error
	UpdateErr     error
	Channels      map[string]*slack.Channel

	nextTS int
}

// New は空のフェイクを作る
func New() *Fake {
	return &Fake{
		PermalinkErrs: map[string]error{},
		Channels:      map[string]*slack.Channel{},
	}
}

func (f *Fake) record(method, channel, ts, user string, options ...slack.MsgOption) {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channel, "https://slack.test/api/", options...)
	if err != nil {
		values = url.Values{}
	}
	f.Calls = append(f.Calls, Call{Method: method, Channel: channel, TS: ts, User: user, Values: values})
}

// CallsTo は指定メソッドの呼び出しだけを返す
func (f *Fake) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var calls []Call
	for _, call := range f.Calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Permalink はフェイクが返すパーマリンク
func Permalink(channelID, ts string) string {
	return fmt.Sprintf("https://example.slack.com/archives/%s/p%s", channelID, strings.ReplaceAll(ts, ".", ""))
}

func (f *Fake) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("chat.postMessage", channelID, "", "", options...)
	if f.PostErr != nil {
		return "", "", f.PostErr
	}
	f.nextTS++
	return channelID, fmt.Sprintf("1700000000.%06d", f.nextTS), nil
}

func (f *Fake) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("chat.update", channelID, timestamp, "", options...)
	if f.UpdateErr != nil {
		return "", "", "", f.UpdateErr
	}
	return channelID, timestamp, "", nil
}

func (f *Fake) DeleteMessageContext(ctx context.Context, channelID, messageTimestamp string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, Call{Method: "chat.delete", Channel: channelID, TS: messageTimestamp, Values: url.Values{}})
	return channelID, messageTimestamp, nil
}

func (f *Fake) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("chat.postEphemeral", channelID, "", userID, options...)
	if f.PostErr != nil {
		return "", f.PostErr
	}
	return "1700000000.999999", nil
}

func (f *Fake) OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Views = append(f.Views, view)
	return &slack.ViewResponse{}, nil
}

func (f *Fake) GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.PermalinkErrs[params.Ts]; err != nil {
		return "", err
	}
	return Permalink(params.Channel, params.Ts), nil
}

func (f *Fake) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.HistoryRequests = append(f.HistoryRequests, *params)
	page := len(f.HistoryRequests)

	if f.HistoryErrPage > 0 && page == f.HistoryErrPage {
		return nil, f.HistoryErr
	}
	if page > len(f.HistoryPages) {
		return &slack.GetConversationHistoryResponse{}, nil
	}

	resp := f.HistoryPages[page-1]
	return &resp, nil
}

func (f *Fake) GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel, ok := f.Channels[input.ChannelID]
	if !ok {
		return nil, fmt.Errorf("channel_not_found")
	}
	return channel, nil
}

// HistoryMessage は履歴に載るレビューメッセージを作る
func HistoryMessage(ts string, metadata slack.SlackMetadata, blocks []slack.Block) slack.Message {
	msg := slack.Message{}
	msg.Timestamp = ts
	msg.Metadata = metadata
	msg.Blocks = slack.Blocks{BlockSet: blocks}
	return msg
}

// HistoryPage は1ページ分の履歴レスポンスを作る
func HistoryPage(nextCursor string, messages ...slack.Message) slack.GetConversationHistoryResponse {
	resp := slack.GetConversationHistoryResponse{Messages: messages}
	resp.Ok = true
	if nextCursor != "" {
		resp.HasMore = true
		resp.ResponseMetaData.NextCursor = nextCursor
	}
	return resp
}
