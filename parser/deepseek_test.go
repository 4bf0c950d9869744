package parser

import (
	"testing"

	"github.com/poiesic/aisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepSeekParser_Parse(t *testing.T) {
	data := `{"data": [
	  {"chat_id": "c1", "title": "Trip planning", "created_at": "2024-03-01T08:00:00Z",
	   "messages": [
	     {"role": "user", "content": "Plan a trip to Kyoto"},
	     {"role": "assistant", "content": "Here is an itinerary..."}
	   ]},
	  {"chat_id": "c2", "title": "", "created_at": 1709280000,
	   "messages": [
	     {"role": "system", "content": "Be brief"},
	     {"role": "narrator", "content": "ignored"},
	     {"role": "user", "content": ""},
	     {"role": "USER", "content": "Hi"}
	   ]},
	  {"chat_id": "c3", "title": "empty", "messages": [{"role": "user", "content": "  "}]}
	]}`

	convs, err := NewDeepSeekParser(nil).Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, convs, 2)

	first := convs[0]
	assert.Equal(t, core.SourceDeepSeek, first.Source)
	assert.Equal(t, "c1", first.ExternalID)
	assert.Equal(t, "Trip planning", first.Title)
	require.NotNil(t, first.CreatedAt)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "Plan a trip to Kyoto", first.Messages[0].Content)
	assert.Equal(t, core.RoleAssistant, first.Messages[1].Role)

	second := convs[1]
	assert.Equal(t, core.DefaultTitle, second.Title)
	require.NotNil(t, second.CreatedAt)
	assert.Equal(t, int64(1709280000), second.CreatedAt.Unix())
	require.Len(t, second.Messages, 2)
	assert.Equal(t, core.RoleSystem, second.Messages[0].Role)
	assert.Equal(t, core.RoleUser, second.Messages[1].Role)
	assert.Equal(t, 1, second.Messages[1].MessageIndex)
}

func TestDeepSeekParser_MalformedContainer(t *testing.T) {
	_, err := NewDeepSeekParser(nil).Parse([]byte(`[]`))
	assert.ErrorIs(t, err, ErrMalformedExport)

	_, err = NewDeepSeekParser(nil).Parse([]byte(`{"items": []}`))
	assert.ErrorIs(t, err, ErrMalformedExport)
}

func TestForSource(t *testing.T) {
	for _, source := range core.Sources {
		p, err := ForSource(source)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}

	_, err := ForSource("BARD")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestParseFlexibleTime(t *testing.T) {
	assert.Nil(t, parseFlexibleTime(nil))
	assert.Nil(t, parseFlexibleTime([]byte("null")))
	assert.Nil(t, parseFlexibleTime([]byte(`"yesterday"`)))

	ms := parseFlexibleTime([]byte("1709280000000"))
	require.NotNil(t, ms)
	assert.Equal(t, int64(1709280000), ms.Unix())

	s := parseFlexibleTime([]byte(`"2024-03-01 08:00:00"`))
	require.NotNil(t, s)
	assert.Equal(t, 8, s.Hour())
}
