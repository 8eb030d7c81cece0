package services

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-code-review/models"
)

func TestCompletionResult_FlatJSON(t *testing.T) {
	result := CompletionResult{
		Type:          CompletionComplete,
		ReviewPayload: models.ReviewPayload{Author: "UA", Claimer: "UB", Approver: "UC"},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","author":"UA","claimer":"UB","approver":"UC"}`, string(data))
}

func TestLogCompletionSink(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	LogCompletionSink{}.Emit(CompletionResult{
		Type:          CompletionDelete,
		ReviewPayload: models.ReviewPayload{ChannelID: "C1", MessageTS: "1700000000.000100", Author: "UA"},
	})

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "review delete: "), line)
	assert.JSONEq(t, `{"type":"delete","channel_id":"C1","message_ts":"1700000000.000100","author":"UA"}`,
		strings.TrimPrefix(line, "review delete: "))
}
