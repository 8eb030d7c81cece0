package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"slack-code-review/models"
)

const (
	defaultHistoryPageSize      = 200
	defaultPermalinkConcurrency = 8
	emptyReviewListMessage      = "Look at you go! :thumbsup:"
)

// ReviewMessage はチャンネル履歴から見つかったレビューメッセージ
type ReviewMessage struct {
	Timestamp string
	Payload   models.ReviewPayload
	Blocks    []slack.Block
	Permalink string
}

// ReviewFilter は一覧に含めるレビューを選ぶ
type ReviewFilter func(ReviewMessage) bool

// IncompleteReviews は操作ボタンが残っているレビュー
func IncompleteReviews(m ReviewMessage) bool {
	return HasActiveControls(m.Blocks)
}

// UnapprovedReviews は未完了かつ承認も却下もされていないレビュー
func UnapprovedReviews(m ReviewMessage) bool {
	return HasActiveControls(m.Blocks) && m.Payload.Approver == "" && m.Payload.Decliner == ""
}

// ListResult は一覧の結果
type ListResult struct {
	Count   int      `json:"count"`
	Reviews []string `json:"reviews"`
}

// ListOptions は一覧の条件
type ListOptions struct {
	Filter ReviewFilter // nil の場合は IncompleteReviews
	Label  string       // "incomplete", "unapproved" など
	Post   bool         // true ならエフェメラルメッセージで結果を送る
}

// Lister はチャンネル履歴からレビューを集めて一覧にする
type Lister struct {
	Slack    SlackAPI
	Store    CheckpointStore
	Channels *ChannelDirectory
	Renderer MessageRenderer

	PageSize             int
	PermalinkConcurrency int
}

// ListReviews はチャンネルのレビューを集め、条件に合うものを userID だけに見える形で送る
// 履歴の取得に失敗した場合はそこまでの結果で続行する
func (l *Lister) ListReviews(ctx context.Context, channelID, userID string, opts ListOptions) (ListResult, error) {
	filter := opts.Filter
	if filter == nil {
		filter = IncompleteReviews
	}
	label := opts.Label
	if label == "" {
		label = "incomplete"
	}

	var matched []ReviewMessage
	for _, review := range l.ScanReviews(ctx, channelID) {
		if filter(review) {
			matched = append(matched, review)
		}
	}
	l.addPermalinks(ctx, channelID, matched)

	result := ListResult{Count: len(matched), Reviews: make([]string, 0, len(matched))}
	for _, review := range matched {
		result.Reviews = append(result.Reviews, review.Timestamp)
	}

	if !opts.Post {
		return result, nil
	}

	channelName := ""
	if l.Channels != nil {
		channelName = l.Channels.ChannelName(ctx, channelID)
	}

	_, err := l.Slack.PostEphemeralContext(ctx, channelID, userID,
		slack.MsgOptionBlocks(l.Renderer.RenderReviewList(channelID, label, matched)...),
		slack.MsgOptionText(reviewListSummary(len(matched), label, channelName), false),
		slack.MsgOptionUsername(fmt.Sprintf("%s PR Reviews", titleCase(label))),
	)
	if err != nil {
		return result, fmt.Errorf("chat.postEphemeral: %w", err)
	}

	return result, nil
}

// ScanReviews はチェックポイント以降の履歴をページングしてレビューメッセージを集める
// 最後まで読めた場合のみ、見つかった最も古いレビューのtsまでチェックポイントを進める
func (l *Lister) ScanReviews(ctx context.Context, channelID string) []ReviewMessage {
	oldest, err := l.Store.OldestReview(ctx, channelID)
	if err != nil {
		log.Printf("checkpoint read error (channel: %s): %v", channelID, err)
		oldest = DefaultCheckpoint
	}

	var reviews []ReviewMessage
	cursor := ""
	for {
		resp, err := l.Slack.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID:          channelID,
			Cursor:             cursor,
			Inclusive:          true,
			Limit:              l.pageSize(),
			Oldest:             oldest,
			IncludeAllMetadata: true,
		})
		if err != nil {
			log.Printf("conversations.history error (channel: %s): %v", channelID, err)
			return reviews
		}

		for _, message := range resp.Messages {
			payload, ok := models.PayloadFromMetadata(message.Metadata)
			if !ok {
				continue
			}
			reviews = append(reviews, ReviewMessage{
				Timestamp: message.Timestamp,
				Payload:   payload,
				Blocks:    message.Blocks.BlockSet,
			})
		}

		if resp.HasMore && resp.ResponseMetaData.NextCursor != "" {
			cursor = resp.ResponseMetaData.NextCursor
			continue
		}
		break
	}

	if len(reviews) > 0 {
		l.advanceCheckpoint(ctx, channelID, oldest, reviews)
	}

	return reviews
}

func (l *Lister) advanceCheckpoint(ctx context.Context, channelID, current string, reviews []ReviewMessage) {
	candidate := reviews[0].Timestamp
	for _, review := range reviews[1:] {
		if CompareTimestamps(review.Timestamp, candidate) < 0 {
			candidate = review.Timestamp
		}
	}

	// チェックポイントは後ろに戻さない
	if CompareTimestamps(candidate, current) <= 0 {
		return
	}

	if err := l.Store.UpdateOldestReview(ctx, channelID, candidate); err != nil {
		log.Printf("checkpoint update error (channel: %s): %v", channelID, err)
	}
}

// addPermalinks はパーマリンクを並行して取得する
// 取得に失敗したレビューはリンク無しのまま一覧に残す
func (l *Lister) addPermalinks(ctx context.Context, channelID string, reviews []ReviewMessage) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.permalinkConcurrency())

	for i := range reviews {
		review := &reviews[i]
		g.Go(func() error {
			permalink, err := l.Slack.GetPermalinkContext(gctx, &slack.PermalinkParameters{
				Channel: channelID,
				Ts:      review.Timestamp,
			})
			if err != nil {
				log.Printf("chat.getPermalink error (channel: %s, ts: %s): %v", channelID, review.Timestamp, err)
				return nil
			}
			review.Permalink = permalink
			return nil
		})
	}

	_ = g.Wait()
}

func (l *Lister) pageSize() int {
	if l.PageSize > 0 {
		return l.PageSize
	}
	return defaultHistoryPageSize
}

func (l *Lister) permalinkConcurrency() int {
	if l.PermalinkConcurrency > 0 {
		return l.PermalinkConcurrency
	}
	return defaultPermalinkConcurrency
}

// RenderReviewList はレビュー一覧のブロックを作る
func (r MessageRenderer) RenderReviewList(channelID, label string, reviews []ReviewMessage) []slack.Block {
	count := len(reviews)
	title := titleCase(label)

	builder := NewSlackBlockBuilder().
		AddHeader(fmt.Sprintf("%d %s PR Code Review%s", count, title, plural(count))).
		AddContext(fmt.Sprintf("This includes all the %s PR Code Reviews from <#%s>.", strings.ToLower(label), channelID))

	for _, review := range reviews {
		var button slack.BlockElement
		if review.Permalink != "" {
			button = CreateLinkButton("View Code Review", ActionViewCodeReviewThread.ID(), review.Permalink, "")
		}
		builder.AddSectionWithAccessory(r.reviewListEntry(review), button)
	}

	if count == 0 {
		builder.AddPlainSection(emptyReviewListMessage)
	}

	return builder.Build()
}

func (r MessageRenderer) reviewListEntry(review ReviewMessage) string {
	p := review.Payload
	icon := StateIcon(DeriveState(p), p.Mark)

	title := p.PRTitle
	if title == "" {
		title = r.IssueLink(p.IssueID, "")
	}

	text := fmt.Sprintf("%s %s: <%s|See Pull Request> by *<@%s>*", icon, formatReviewDate(review.Timestamp), p.PRURL, p.Author)
	if title != "" {
		text += fmt.Sprintf("\n_%s_", title)
	}
	return text
}

func formatReviewDate(ts string) string {
	sec, _ := splitTimestamp(ts)
	return time.Unix(sec, 0).UTC().Format("Jan 02, 2006")
}

func reviewListSummary(count int, label, channelName string) string {
	verb := "are"
	if count == 1 {
		verb = "is"
	}
	text := fmt.Sprintf("There %s currently %d %s PR Code Review%s", verb, count, titleCase(label), plural(count))
	if channelName != "" {
		text += fmt.Sprintf(" in `#%s`", channelName)
	}
	return text
}

func plural(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
