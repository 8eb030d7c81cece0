package services

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"slack-code-review/models"
)

const (
	// ControlsBlockID はレビューメッセージの操作ボタンのブロックID
	ControlsBlockID = "review_controls"

	headerMaxLength  = 150
	sectionMaxLength = 3000
)

// OverflowOption オーバーフローメニューの選択肢
type OverflowOption struct {
	Text   string
	Action Action
}

// AllOverflowOptions 全ての状態で表示するオーバーフローメニュー
var AllOverflowOptions = []OverflowOption{
	{Text: "List Incomplete Reviews", Action: ActionListIncompleteReviews},
	{Text: "Edit PR Review", Action: ActionEdit},
	{Text: "Complete PR Review", Action: ActionComplete},
	{Text: "Delete PR Review", Action: ActionDelete},
}

// SlackBlockBuilder Slack Block Kit構築のヘルパー
type SlackBlockBuilder struct {
	blocks []slack.Block
}

// NewSlackBlockBuilder 新しいビルダーを作成
func NewSlackBlockBuilder() *SlackBlockBuilder {
	return &SlackBlockBuilder{
		blocks: make([]slack.Block, 0),
	}
}

// AddHeader ヘッダーブロックを追加
func (b *SlackBlockBuilder) AddHeader(text string) *SlackBlockBuilder {
	b.blocks = append(b.blocks, slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, truncate(text, headerMaxLength), true, false),
	))
	return b
}

// AddContext コンテキストブロックを追加
func (b *SlackBlockBuilder) AddContext(text string) *SlackBlockBuilder {
	b.blocks = append(b.blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
	))
	return b
}

// AddSection セクションブロックを追加
func (b *SlackBlockBuilder) AddSection(text string) *SlackBlockBuilder {
	b.blocks = append(b.blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil,
	))
	return b
}

// AddPlainSection プレーンテキストのセクションブロックを追加
func (b *SlackBlockBuilder) AddPlainSection(text string) *SlackBlockBuilder {
	b.blocks = append(b.blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.PlainTextType, text, true, false), nil, nil,
	))
	return b
}

// AddSectionWithAccessory 右側に要素を持つセクションブロックを追加
func (b *SlackBlockBuilder) AddSectionWithAccessory(text string, element slack.BlockElement) *SlackBlockBuilder {
	var accessory *slack.Accessory
	if element != nil {
		accessory = slack.NewAccessory(element)
	}
	b.blocks = append(b.blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, accessory,
	))
	return b
}

// AddDivider 区切り線を追加
func (b *SlackBlockBuilder) AddDivider() *SlackBlockBuilder {
	b.blocks = append(b.blocks, slack.NewDividerBlock())
	return b
}

// AddActions アクションブロックを追加
func (b *SlackBlockBuilder) AddActions(blockID string, elements ...slack.BlockElement) *SlackBlockBuilder {
	if len(elements) == 0 {
		return b
	}

	b.blocks = append(b.blocks, slack.NewActionBlock(blockID, elements...))
	return b
}

// Build ブロック配列を取得
func (b *SlackBlockBuilder) Build() []slack.Block {
	return b.blocks
}

// CreateButton ボタン要素を作成
func CreateButton(text, actionID, value, style string) *slack.ButtonBlockElement {
	button := slack.NewButtonBlockElement(actionID, value,
		slack.NewTextBlockObject(slack.PlainTextType, text, true, false))

	if style != "" {
		button.Style = slack.Style(style)
	}

	return button
}

// CreateLinkButton URLを開くボタン要素を作成
func CreateLinkButton(text, actionID, url, style string) *slack.ButtonBlockElement {
	button := CreateButton(text, actionID, "", style)
	button.URL = url
	return button
}

// CreateConfirmation 取り消せない操作の確認ダイアログを作成
func CreateConfirmation(text, confirm string) *slack.ConfirmationBlockObject {
	return slack.NewConfirmationBlockObject(
		slack.NewTextBlockObject(slack.PlainTextType, "Are You Sure?", true, false),
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
		slack.NewTextBlockObject(slack.PlainTextType, confirm, true, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Take Me Back", true, false),
	)
}

// CreateReviewOverflow レビュー用のオーバーフローメニューを作成
func CreateReviewOverflow() *slack.OverflowBlockElement {
	options := make([]*slack.OptionBlockObject, len(AllOverflowOptions))
	for i, option := range AllOverflowOptions {
		options[i] = slack.NewOptionBlockObject(option.Action.ID(),
			slack.NewTextBlockObject(slack.PlainTextType, option.Text, true, false), nil)
	}
	return slack.NewOverflowBlockElement(ActionOverflow.ID(), options...)
}

// CreateMessageBlocks メッセージのみのブロックを作成
func CreateMessageBlocks(message string) []slack.Block {
	return NewSlackBlockBuilder().
		AddSection(message).
		Build()
}

// MessageRenderer はレビューの状態をメッセージ本文に描画する
// 同じ入力には常に同じブロックを返す
type MessageRenderer struct {
	IssueURLPrefix string
}

// Render はペイロードからレビューメッセージのブロックを作成する
// completed が true の場合は操作ボタンを含めない
func (r MessageRenderer) Render(p models.ReviewPayload, completed bool) []slack.Block {
	state := DeriveState(p)
	icon := StateIcon(state, p.Mark)

	builder := NewSlackBlockBuilder().
		AddHeader(reviewHeader(icon, p.IssueID)).
		AddContext(r.reviewContext(p))

	if p.HasDescription() {
		builder.AddDivider().AddSection(truncate(p.PRDescription, sectionMaxLength))
	}

	builder.AddSection(strings.Join(ActivityLog(p), "\n"))

	if controls := Controls(state, completed); len(controls) > 0 {
		builder.AddDivider().AddActions(ControlsBlockID, controls...)
	}

	return builder.Build()
}

// FallbackText は通知などに使われるメッセージのテキスト
func (r MessageRenderer) FallbackText(p models.ReviewPayload) string {
	if p.IssueID == "" {
		return "A Pull Request is ready for Code Review!"
	}
	return fmt.Sprintf("A Pull Request for %s is ready for Code Review!", p.IssueID)
}

// IssueLink は課題管理システムへのリンクを作る
// プレフィックスが未設定の場合は課題IDをそのまま返す
func (r MessageRenderer) IssueLink(issueID, label string) string {
	if r.IssueURLPrefix == "" || issueID == "" {
		return issueID
	}
	if label == "" {
		label = issueID
	}
	return fmt.Sprintf("<%s%s|%s>", r.IssueURLPrefix, issueID, label)
}

func (r MessageRenderer) reviewContext(p models.ReviewPayload) string {
	text := fmt.Sprintf("*%s*  | <%s|See Pull Request>", PriorityBadge(p.Priority), p.PRURL)
	if p.IssueID == "" {
		return text
	}
	if r.IssueURLPrefix == "" {
		return text + " for " + p.IssueID
	}
	return text + " or " + r.IssueLink(p.IssueID, "See Issue")
}

func reviewHeader(icon, issueID string) string {
	if issueID == "" {
		return fmt.Sprintf("%s Pull Request %s", icon, icon)
	}
	return fmt.Sprintf("%s Pull Request for %s %s", icon, issueID, icon)
}

// ActivityLog は設定されている役割を author, claimer, marker, approver, decliner の順に並べる
func ActivityLog(p models.ReviewPayload) []string {
	lines := []string{fmt.Sprintf("_Authored By: *<@%s>*_", p.Author)}

	if p.Claimer != "" {
		lines = append(lines, fmt.Sprintf("_Claimed By: *<@%s>*_", p.Claimer))
	}
	if p.Marker != "" {
		lines = append(lines, fmt.Sprintf("_Marked as '%s' By: *<@%s>*_", p.Mark, p.Marker))
	}
	if p.Approver != "" {
		lines = append(lines, fmt.Sprintf("_Approved By: *<@%s>*_", p.Approver))
	}
	if p.Decliner != "" {
		lines = append(lines, fmt.Sprintf("_Declined By: *<@%s>*_", p.Decliner))
	}

	return lines
}

// Controls は状態に応じた操作ボタンを返す
func Controls(state ReviewState, completed bool) []slack.BlockElement {
	if completed {
		return nil
	}

	var buttons []slack.BlockElement
	switch state {
	case StateAuthored:
		buttons = []slack.BlockElement{
			CreateButton("Claim", ActionClaim.ID(), "", string(slack.StylePrimary)),
		}
	case StateClaimed:
		buttons = []slack.BlockElement{
			CreateButton("Remove Claim", ActionUnclaim.ID(), "", ""),
			CreateButton("Mark", ActionMark.ID(), "", ""),
			CreateButton("Approve", ActionApprove.ID(), "", string(slack.StylePrimary)),
			CreateButton("Decline", ActionDecline.ID(), "", string(slack.StyleDanger)),
		}
	case StateMarked:
		buttons = []slack.BlockElement{
			CreateButton("Remove Mark", ActionUnmark.ID(), "", ""),
			completeButton(),
		}
	case StateApproved:
		buttons = []slack.BlockElement{
			CreateButton("Re-Open", ActionUnapprove.ID(), "", ""),
			completeButton(),
		}
	case StateDeclined:
		buttons = []slack.BlockElement{
			CreateButton("Re-Open", ActionUndecline.ID(), "", ""),
			completeButton(),
		}
	}

	return append(buttons, CreateReviewOverflow())
}

func completeButton() *slack.ButtonBlockElement {
	button := CreateButton("Complete", ActionComplete.ID(), "", string(slack.StylePrimary))
	button.Confirm = CreateConfirmation(
		"Completing this review removes its buttons. This cannot be undone.", "Complete")
	return button
}

// ControlActionIDs はブロックに含まれる操作の action_id を順番に返す
func ControlActionIDs(blocks []slack.Block) []string {
	var ids []string
	for _, block := range blocks {
		actions, ok := block.(*slack.ActionBlock)
		if !ok || actions.Elements == nil {
			continue
		}
		for _, element := range actions.Elements.ElementSet {
			switch e := element.(type) {
			case *slack.ButtonBlockElement:
				ids = append(ids, e.ActionID)
			case *slack.OverflowBlockElement:
				ids = append(ids, e.ActionID)
			}
		}
	}
	return ids
}

// HasActiveControls は操作ボタンが残っている（＝未完了の）メッセージかどうか
func HasActiveControls(blocks []slack.Block) bool {
	for _, block := range blocks {
		if block != nil && block.BlockType() == slack.MBTAction {
			return true
		}
	}
	return false
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}
