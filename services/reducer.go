package services

import (
	"strings"

	"slack-code-review/models"
)

// Origin はアクションを受け取った時点のコンテキスト
// 直前のペイロードに値が無い場合のみ使われる
type Origin struct {
	ChannelID string
	MessageTS string
	Author    string
}

// EditFields は編集モーダルから送信された値
type EditFields struct {
	Priority      string
	IssueID       string
	PRURL         string
	PRDescription string
}

// ActionInput はリデューサーへの入力
type ActionInput struct {
	Action Action
	User   string
	Mark   string     // ActionMark のときのみ
	Edit   EditFields // ActionEdit のときのみ
}

// Reduce は直前のペイロードとアクションから新しいペイロードを作る
// complete/delete などペイロードを変えないアクションはそのままコピーを返す
func Reduce(prev *models.ReviewPayload, origin Origin, in ActionInput) models.ReviewPayload {
	var next models.ReviewPayload
	if prev != nil {
		next = *prev
	}
	next = ApplyOrigin(next, origin)

	switch in.Action {
	case ActionClaim:
		next.Claimer = in.User
	case ActionUnclaim:
		next.Claimer = ""
	case ActionMark:
		next.Marker = in.User
		next.Mark = in.Mark
	case ActionUnmark:
		next.Marker = ""
		next.Mark = ""
	case ActionApprove:
		next.Approver = in.User
	case ActionUnapprove:
		next.Approver = ""
	case ActionDecline:
		next.Decliner = in.User
	case ActionUndecline:
		next.Decliner = ""
	case ActionEdit:
		next.Priority = NormalizePriority(in.Edit.Priority)
		next.IssueID = strings.TrimSpace(in.Edit.IssueID)
		next.PRURL = strings.TrimSpace(in.Edit.PRURL)
		next.PRDescription = in.Edit.PRDescription
		if strings.TrimSpace(next.PRDescription) == "" {
			next.PRDescription = models.DescriptionUnset
		}
	case ActionComplete, ActionDelete, ActionOverflow,
		ActionListIncompleteReviews, ActionViewCodeReviewThread:
		// ペイロードは変更しない
	}

	return next
}

// ApplyOrigin はペイロードに無い識別情報（チャンネル、ts、作成者）を origin で補う
// 作成直後のメッセージのメタデータには message_ts が含まれない
func ApplyOrigin(p models.ReviewPayload, origin Origin) models.ReviewPayload {
	if p.ChannelID == "" {
		p.ChannelID = origin.ChannelID
	}
	if p.MessageTS == "" {
		p.MessageTS = origin.MessageTS
	}
	if p.Author == "" {
		p.Author = origin.Author
	}
	return p
}
