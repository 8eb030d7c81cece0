package services

import "strings"

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// PriorityOption は優先度の選択肢
type PriorityOption struct {
	Value string
	Badge string
}

// AllPriorityOptions 優先度の選択肢（表示順）
var AllPriorityOptions = []PriorityOption{
	{Value: PriorityLow, Badge: "⚪️ Low Priority (Not Urgent)"},
	{Value: PriorityMedium, Badge: "🔵 Medium Priority (Timely)"},
	{Value: PriorityHigh, Badge: "🔴 High Priority (Urgent)"},
}

// NormalizePriority は不明な値を medium にそろえる
func NormalizePriority(priority string) string {
	switch p := strings.ToLower(strings.TrimSpace(priority)); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	}
	return PriorityMedium
}

// PriorityBadge は優先度の表示ラベル
func PriorityBadge(priority string) string {
	normalized := NormalizePriority(priority)
	for _, option := range AllPriorityOptions {
		if option.Value == normalized {
			return option.Badge
		}
	}
	return AllPriorityOptions[1].Badge
}
