package services

import "slack-code-review/models"

// ReviewState はレビューの状態
type ReviewState int

const (
	StateAuthored ReviewState = iota
	StateClaimed
	StateMarked
	StateApproved
	StateDeclined
)

// AllStates 全ての状態
var AllStates = []ReviewState{
	StateAuthored,
	StateClaimed,
	StateMarked,
	StateApproved,
	StateDeclined,
}

func (s ReviewState) String() string {
	switch s {
	case StateAuthored:
		return "authored"
	case StateClaimed:
		return "claimed"
	case StateMarked:
		return "marked"
	case StateApproved:
		return "approved"
	case StateDeclined:
		return "declined"
	}
	return "unknown"
}

// MarkNeedsWork は現在唯一のマーク種別
const MarkNeedsWork = "Needs Work"

// DeriveState はペイロードから状態を導出する
// 優先順位は approver > decliner > marker > claimer で、この順序は変えないこと
func DeriveState(p models.ReviewPayload) ReviewState {
	switch {
	case p.Approver != "":
		return StateApproved
	case p.Decliner != "":
		return StateDeclined
	case p.Marker != "":
		return StateMarked
	case p.Claimer != "":
		return StateClaimed
	default:
		return StateAuthored
	}
}

// StateIcon は状態とマークに対応する絵文字を返す
func StateIcon(state ReviewState, mark string) string {
	switch state {
	case StateAuthored:
		return ":tada:"
	case StateClaimed:
		return ":eyes:"
	case StateApproved:
		return ":white_check_mark:"
	case StateDeclined:
		return ":no_entry_sign:"
	case StateMarked:
		return markIcon(mark)
	}
	return ":tada:"
}

func markIcon(mark string) string {
	if mark == MarkNeedsWork {
		return ":construction:"
	}
	return ":tada:"
}
