package telegram

import (
	"errors"
	"testing"

	"ghostbot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("edit", errors.New("Bad Request: message is not modified: specified new message content")))
	assert.ErrorIs(t, classify("edit", errors.New("Bad Request: message to edit not found")), transport.ErrNotFound)
	assert.ErrorIs(t, classify("delete", errors.New("Bad Request: message to delete not found")), transport.ErrNotFound)

	other := errors.New("Too Many Requests: retry after 3")
	err := classify("edit", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, transport.ErrNotFound)
}

func TestInlineKeyboard(t *testing.T) {
	assert.Nil(t, inlineKeyboard(nil))

	kb := inlineKeyboard(transport.Keyboard{
		{{Text: "A", Data: "menu_a"}, {Text: "B", Data: "menu_b"}},
		{{Text: "C", Data: "menu_c"}},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "B", kb.InlineKeyboard[0][1].Text)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "menu_c", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestNewRejectsEmptyToken(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
