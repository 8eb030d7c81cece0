package services

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"slack-code-review/models"
)

const (
	// NotifyModeThread はレビューメッセージのスレッドに通知する
	NotifyModeThread = "thread"
	// NotifyModeDM は通知先ユーザーにDMを送る
	NotifyModeDM = "dm"
)

// NotificationIcon はアクションごとの通知アイコン
func NotificationIcon(action Action, mark string) string {
	switch action {
	case ActionUnapprove, ActionUndecline:
		return ":open_book:"
	case ActionApprove:
		return ":white_check_mark:"
	case ActionDecline:
		return ":no_entry_sign:"
	case ActionClaim:
		return ":eyes:"
	case ActionUnclaim:
		return ":dark_sunglasses:"
	case ActionEdit:
		return ":pencil2:"
	case ActionUnmark:
		return ":black_nib:"
	case ActionMark:
		return markIcon(mark)
	}
	return ":tada:"
}

// NotificationMessage はアクションごとの通知文を作る
// 通知対象外のアクションの場合は ok=false
func (r MessageRenderer) NotificationMessage(action Action, p models.ReviewPayload, actingUser string) (string, bool) {
	pr := fmt.Sprintf("<%s|Pull Request>", p.PRURL)
	issue := r.IssueLink(p.IssueID, "")
	if issue == "" {
		issue = "this review"
	}

	var text string
	switch action {
	case ActionUnapprove:
		text = fmt.Sprintf("Re-Opened (Unapproved) the %s for %s.", pr, issue)
	case ActionApprove:
		text = fmt.Sprintf("Approved the %s for %s.", pr, issue)
	case ActionUndecline:
		text = fmt.Sprintf("Re-Opened (Un-Declined) the %s for %s.", pr, issue)
	case ActionDecline:
		text = fmt.Sprintf("Declined the %s for %s.", pr, issue)
	case ActionClaim:
		text = fmt.Sprintf("Claimed the %s for %s.", pr, issue)
	case ActionUnclaim:
		text = fmt.Sprintf("Unclaimed the %s for %s.", pr, issue)
	case ActionMark:
		text = fmt.Sprintf("Marked the %s as '%s' for %s.", pr, p.Mark, issue)
	case ActionUnmark:
		text = fmt.Sprintf("Unmarked the %s for %s.", pr, issue)
	case ActionEdit:
		text = fmt.Sprintf("Edited the %s Review for %s.", pr, issue)
	case ActionComplete, ActionDelete, ActionOverflow,
		ActionListIncompleteReviews, ActionViewCodeReviewThread:
		return "", false
	}

	return fmt.Sprintf("<@%s> %s", actingUser, text), true
}

// NotificationTargets は通知を受け取るユーザーを返す
// 解除系のアクションは直前に役割を持っていたユーザー（decliner > approver > marker > claimer、無ければ作成者）に、
// それ以外は作成者に通知する。approve/decline/mark はクレームしていたユーザーにも通知する
func NotificationTargets(action Action, prev models.ReviewPayload) []string {
	var targets []string

	if action.IsUndo() {
		target := prev.Author
		for _, holder := range []string{prev.Decliner, prev.Approver, prev.Marker, prev.Claimer} {
			if holder != "" {
				target = holder
				break
			}
		}
		targets = append(targets, target)
	} else {
		targets = append(targets, prev.Author)
		switch action {
		case ActionApprove, ActionDecline, ActionMark:
			targets = append(targets, prev.Claimer)
		}
	}

	seen := map[string]bool{}
	result := make([]string, 0, len(targets))
	for _, target := range targets {
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		result = append(result, target)
	}
	return result
}

// Notifier はレビューの操作を関係者に知らせる
type Notifier struct {
	Slack    SlackAPI
	Renderer MessageRenderer
	Mode     string
}

// NotifyAll は NotificationTargets の全員に通知する
func (n *Notifier) NotifyAll(ctx context.Context, action Action, prev, next models.ReviewPayload, actingUser string) {
	for _, target := range NotificationTargets(action, prev) {
		if err := n.Notify(ctx, action, next, actingUser, target); err != nil {
			log.Printf("notification error (action: %s, target: %s): %v", action, target, err)
		}
	}
}

// Notify は targetUser に通知を送る。自分自身の操作は通知しない
func (n *Notifier) Notify(ctx context.Context, action Action, p models.ReviewPayload, actingUser, targetUser string) error {
	if targetUser == "" || targetUser == actingUser {
		return nil
	}

	message, ok := n.Renderer.NotificationMessage(action, p, actingUser)
	if !ok {
		return nil
	}

	text := fmt.Sprintf("%s <@%s>, %s", NotificationIcon(action, p.Mark), targetUser, message)

	if n.Mode == NotifyModeDM {
		return n.postDirectMessage(ctx, p, targetUser, text, message)
	}

	_, _, err := n.Slack.PostMessageContext(ctx, p.ChannelID,
		slack.MsgOptionTS(p.MessageTS),
		slack.MsgOptionBlocks(CreateMessageBlocks(text)...),
		slack.MsgOptionText(message, false),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("thread notification: %w", err)
	}
	return nil
}

func (n *Notifier) postDirectMessage(ctx context.Context, p models.ReviewPayload, targetUser, text, fallback string) error {
	builder := NewSlackBlockBuilder().AddSection(text)

	permalink, err := n.Slack.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: p.ChannelID,
		Ts:      p.MessageTS,
	})
	if err != nil {
		log.Printf("permalink error (channel: %s, ts: %s): %v", p.ChannelID, p.MessageTS, err)
	} else {
		builder.AddActions("", CreateLinkButton("View Code Review Thread",
			ActionViewCodeReviewThread.ID(), permalink, string(slack.StylePrimary)))
	}

	_, _, err = n.Slack.PostMessageContext(ctx, targetUser,
		slack.MsgOptionBlocks(builder.Build()...),
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("direct notification: %w", err)
	}
	return nil
}
