package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAction_AllActions(t *testing.T) {
	seen := map[string]bool{}
	for _, action := range AllActions {
		id := action.ID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "action_id が重複しています: %s", id)
		seen[id] = true

		parsed, ok := ParseAction(id)
		assert.True(t, ok)
		assert.Equal(t, action, parsed)
	}
}

func TestParseAction_Unknown(t *testing.T) {
	_, ok := ParseAction("review_take")
	assert.False(t, ok)

	_, ok = ParseAction("")
	assert.False(t, ok)
}

func TestParseAction_WireIDs(t *testing.T) {
	a, ok := ParseAction("list_incomplete_reviews")
	assert.True(t, ok)
	assert.Equal(t, ActionListIncompleteReviews, a)

	a, ok = ParseAction("view_code_review_thread")
	assert.True(t, ok)
	assert.Equal(t, ActionViewCodeReviewThread, a)
}

func TestIsUndo(t *testing.T) {
	undo := map[Action]bool{
		ActionUnclaim:   true,
		ActionUnmark:    true,
		ActionUnapprove: true,
		ActionUndecline: true,
	}
	for _, action := range AllActions {
		assert.Equal(t, undo[action], action.IsUndo(), action.String())
	}
}
