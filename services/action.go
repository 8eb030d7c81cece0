package services

import "strings"

// Action はボタン・オーバーフローメニューから届くアクション
type Action int

const (
	ActionClaim Action = iota
	ActionUnclaim
	ActionMark
	ActionUnmark
	ActionApprove
	ActionUnapprove
	ActionDecline
	ActionUndecline
	ActionEdit
	ActionComplete
	ActionDelete
	ActionOverflow
	ActionListIncompleteReviews
	ActionViewCodeReviewThread
)

// AllActions 受け付ける全てのアクション
var AllActions = []Action{
	ActionClaim,
	ActionUnclaim,
	ActionMark,
	ActionUnmark,
	ActionApprove,
	ActionUnapprove,
	ActionDecline,
	ActionUndecline,
	ActionEdit,
	ActionComplete,
	ActionDelete,
	ActionOverflow,
	ActionListIncompleteReviews,
	ActionViewCodeReviewThread,
}

// ID はSlack上の action_id を返す
func (a Action) ID() string {
	switch a {
	case ActionClaim:
		return "claim"
	case ActionUnclaim:
		return "unclaim"
	case ActionMark:
		return "mark"
	case ActionUnmark:
		return "unmark"
	case ActionApprove:
		return "approve"
	case ActionUnapprove:
		return "unapprove"
	case ActionDecline:
		return "decline"
	case ActionUndecline:
		return "undecline"
	case ActionEdit:
		return "edit"
	case ActionComplete:
		return "complete"
	case ActionDelete:
		return "delete"
	case ActionOverflow:
		return "overflow"
	case ActionListIncompleteReviews:
		return "list_incomplete_reviews"
	case ActionViewCodeReviewThread:
		return "view_code_review_thread"
	}
	return ""
}

func (a Action) String() string {
	return a.ID()
}

var actionsByID = func() map[string]Action {
	m := make(map[string]Action, len(AllActions))
	for _, a := range AllActions {
		m[a.ID()] = a
	}
	return m
}()

// ParseAction は action_id をアクションに変換する
func ParseAction(id string) (Action, bool) {
	a, ok := actionsByID[strings.TrimSpace(id)]
	return a, ok
}

// IsUndo は役割を解除するアクションかどうか
func (a Action) IsUndo() bool {
	switch a {
	case ActionUnclaim, ActionUnmark, ActionUnapprove, ActionUndecline:
		return true
	}
	return false
}
