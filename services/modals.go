package services

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"slack-code-review/models"
)

// モーダルの callback_id
const (
	CreateModalCallbackID   = "create_modal"
	EditModalCallbackID     = "edit_modal"
	MarkModalCallbackID     = "mark_modal"
	CompleteModalCallbackID = "complete_modal"
	DeleteModalCallbackID   = "delete_modal"
)

// モーダル内の block_id / action_id
const (
	PriorityBlockID      = "priority_section"
	IssueIDBlockID       = "issue_id_section"
	PRURLBlockID         = "pr_url_section"
	PRDescriptionBlockID = "pr_description_section"
	MarkBlockID          = "mark_section"

	PriorityActionID      = "priority"
	IssueIDActionID       = "issue_id"
	PRURLActionID         = "pr_url"
	PRDescriptionActionID = "pr_description"
	MarkActionID          = "mark"
)

// 入力欄の最大文字数。合計しても private_metadata の上限に収まる長さにしている
const (
	IssueIDMaxLength     = 100
	PRURLMaxLength       = 500
	DescriptionMaxLength = 1500
)

// MarkOption はマークの選択肢
type MarkOption struct {
	Text  string
	Value string
}

// AllMarkOptions 選択できるマーク
var AllMarkOptions = []MarkOption{
	{Text: ":construction: Needs Work", Value: MarkNeedsWork},
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func priorityOption(option PriorityOption) *slack.OptionBlockObject {
	return slack.NewOptionBlockObject(option.Value, plainText(option.Badge), nil)
}

// CreateReviewModal は新しいレビューを作成するモーダル
func CreateReviewModal(channelID string) slack.ModalViewRequest {
	return reviewFormModal(CreateModalCallbackID, "New PR Code Review", "Begin Code Review",
		models.ReviewPayload{ChannelID: channelID, Priority: PriorityMedium})
}

// EditReviewModal は既存のレビューを編集するモーダル
func EditReviewModal(p models.ReviewPayload) slack.ModalViewRequest {
	return reviewFormModal(EditModalCallbackID, "Edit Pull Request", "Finish Editing", p)
}

func reviewFormModal(callbackID, title, submit string, p models.ReviewPayload) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, len(AllPriorityOptions))
	var initial *slack.OptionBlockObject
	for i, option := range AllPriorityOptions {
		options[i] = priorityOption(option)
		if option.Value == NormalizePriority(p.Priority) {
			initial = options[i]
		}
	}
	prioritySelect := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Select a Priority"), PriorityActionID, options...)
	prioritySelect.InitialOption = initial

	issueInput := slack.NewPlainTextInputBlockElement(plainText("ABC-1234"), IssueIDActionID)
	issueInput.InitialValue = p.IssueID
	issueInput.MaxLength = IssueIDMaxLength

	prURLInput := slack.NewPlainTextInputBlockElement(plainText("https://github.com/owner/repo/pull/1"), PRURLActionID)
	prURLInput.MaxLength = PRURLMaxLength
	if IsValidHTTPURL(p.PRURL) {
		prURLInput.InitialValue = p.PRURL
	}

	descriptionInput := slack.NewPlainTextInputBlockElement(nil, PRDescriptionActionID)
	descriptionInput.Multiline = true
	descriptionInput.MaxLength = DescriptionMaxLength
	if p.HasDescription() {
		descriptionInput.InitialValue = p.PRDescription
	}

	descriptionBlock := slack.NewInputBlock(PRDescriptionBlockID, plainText("Pull Request Description"),
		plainText("A description that will be posted with your Pull Request. Supports Slack Markdown."), descriptionInput)
	descriptionBlock.Optional = true

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackID,
		PrivateMetadata: p.PrivateMetadata(),
		Title:           plainText(title),
		Submit:          plainText(submit),
		Close:           plainText("Cancel"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewInputBlock(PriorityBlockID, plainText("Priority"),
				plainText("The urgency of your Pull Request, helps indicate time sensitivity."), prioritySelect),
			slack.NewInputBlock(IssueIDBlockID, plainText("Issue ID"),
				plainText("The ID of the Issue (i.e. CCS-2425)."), issueInput),
			slack.NewInputBlock(PRURLBlockID, plainText("Pull Request URL"),
				plainText("The URL that navigates to the Pull Request."), prURLInput),
			descriptionBlock,
		}},
	}
}

// MarkReviewModal はマークを選択するモーダル
func MarkReviewModal(p models.ReviewPayload) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, len(AllMarkOptions))
	for i, option := range AllMarkOptions {
		options[i] = slack.NewOptionBlockObject(option.Value, plainText(option.Text), nil)
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      MarkModalCallbackID,
		PrivateMetadata: p.PrivateMetadata(),
		Title:           plainText("Add Mark to Review"),
		Submit:          plainText("Add Mark"),
		Close:           plainText("Cancel"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewInputBlock(MarkBlockID, plainText("Mark"),
				plainText("A status that will be added to the review in lieu of approving or declining"),
				slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Select a Mark"), MarkActionID, options...)),
		}},
	}
}

// ConfirmModal は取り消せない操作の前に表示する確認モーダル
func ConfirmModal(p models.ReviewPayload, text, callbackID string) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackID,
		ClearOnClose:    true,
		PrivateMetadata: p.PrivateMetadata(),
		Title:           plainText("Are You Sure?"),
		Submit:          plainText("Continue"),
		Close:           plainText("Take Me Back"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		}},
	}
}

// CompleteConfirmModal 完了確認モーダル
func CompleteConfirmModal(p models.ReviewPayload) slack.ModalViewRequest {
	return ConfirmModal(p, "Completing this review removes its buttons. *This cannot be undone.*", CompleteModalCallbackID)
}

// DeleteConfirmModal 削除確認モーダル
func DeleteConfirmModal(p models.ReviewPayload) slack.ModalViewRequest {
	return ConfirmModal(p, "Deleting this review removes the message from the channel. *This cannot be undone.*", DeleteModalCallbackID)
}

func stateValue(state *slack.ViewState, blockID, actionID string) slack.BlockAction {
	if state == nil {
		return slack.BlockAction{}
	}
	return state.Values[blockID][actionID]
}

// EditFieldsFromState は編集・作成モーダルの送信内容を取り出す
func EditFieldsFromState(state *slack.ViewState) EditFields {
	return EditFields{
		Priority:      stateValue(state, PriorityBlockID, PriorityActionID).SelectedOption.Value,
		IssueID:       stateValue(state, IssueIDBlockID, IssueIDActionID).Value,
		PRURL:         stateValue(state, PRURLBlockID, PRURLActionID).Value,
		PRDescription: stateValue(state, PRDescriptionBlockID, PRDescriptionActionID).Value,
	}
}

// MarkFromState はマークモーダルで選択されたマークを取り出す
func MarkFromState(state *slack.ViewState) string {
	return stateValue(state, MarkBlockID, MarkActionID).SelectedOption.Value
}

// ValidateEditFields はモーダルの入力エラーを block_id ごとに返す
func ValidateEditFields(fields EditFields) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(fields.IssueID) == "" {
		errs[IssueIDBlockID] = "Please enter an Issue ID."
	}
	if utf8.RuneCountInString(strings.TrimSpace(fields.IssueID)) > IssueIDMaxLength {
		errs[IssueIDBlockID] = fmt.Sprintf("Issue ID must be %d characters or fewer.", IssueIDMaxLength)
	}
	if !IsValidHTTPURL(strings.TrimSpace(fields.PRURL)) {
		errs[PRURLBlockID] = "Please enter a valid http(s) URL."
	} else if utf8.RuneCountInString(strings.TrimSpace(fields.PRURL)) > PRURLMaxLength {
		errs[PRURLBlockID] = fmt.Sprintf("Pull Request URL must be %d characters or fewer.", PRURLMaxLength)
	}
	if utf8.RuneCountInString(fields.PRDescription) > DescriptionMaxLength {
		errs[PRDescriptionBlockID] = fmt.Sprintf("Description must be %d characters or fewer.", DescriptionMaxLength)
	}
	return errs
}

// IsValidHTTPURL は http/https のURLかどうか
func IsValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
