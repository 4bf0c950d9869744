package parser

import (
	"testing"

	"github.com/poiesic/aisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeParser_Shapes(t *testing.T) {
	single := `{"uuid": "u1", "name": "Refactor", "created_at": "2024-05-01T10:00:00Z",
	  "chat_messages": [
	    {"sender": "human", "text": "Refactor this"},
	    {"sender": "assistant", "text": "", "content": [{"type": "text", "text": "Done"}, {"type": "tool_use"}]},
	    {"sender": "human", "text": "   "}
	  ]}`
	multi := `{"conversations": [` + single + `]}`
	array := `[` + single + `]`

	tests := []struct {
		name string
		data string
	}{
		{"single conversation", single},
		{"conversations wrapper", multi},
		{"bare array", array},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			convs, err := NewClaudeParser(nil).Parse([]byte(tt.data))
			require.NoError(t, err)
			require.Len(t, convs, 1)

			conv := convs[0]
			assert.Equal(t, core.SourceClaude, conv.Source)
			assert.Equal(t, "u1", conv.ExternalID)
			assert.Equal(t, "Refactor", conv.Title)
			assert.Equal(t, "claude", conv.Model)
			require.NotNil(t, conv.CreatedAt)
			require.Len(t, conv.Messages, 2)
			assert.Equal(t, core.RoleUser, conv.Messages[0].Role)
			assert.Equal(t, core.RoleAssistant, conv.Messages[1].Role)
			assert.Equal(t, "Done", conv.Messages[1].Content)
			assert.Equal(t, 1, conv.Messages[1].MessageIndex)
		})
	}
}

func TestClaudeParser_DropsEmptyAndMalformed(t *testing.T) {
	data := `[
	  {"uuid": "blank", "name": "x", "chat_messages": [{"sender": "human", "text": " "}]},
	  {"name": "no uuid", "chat_messages": [{"sender": "human", "text": "hi"}]},
	  {"uuid": "ok", "chat_messages": [{"sender": "bot", "text": "hi"}]}
	]`

	convs, err := NewClaudeParser(nil).Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "ok", convs[0].ExternalID)
	assert.Equal(t, core.DefaultTitle, convs[0].Title)
	assert.Equal(t, core.RoleAssistant, convs[0].Messages[0].Role)
}

func TestClaudeParser_MalformedContainer(t *testing.T) {
	_, err := NewClaudeParser(nil).Parse([]byte(`{"something": "else"}`))
	assert.ErrorIs(t, err, ErrMalformedExport)

	_, err = NewClaudeParser(nil).Parse([]byte(`[{`))
	assert.ErrorIs(t, err, ErrMalformedExport)
}
