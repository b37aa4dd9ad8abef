package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Run("builds message with settings", func(t *testing.T) {
		msg, err := NewMessage("cons-1", "mobileapp://com.example.app/home", map[string]any{
			"content":          "<html>hi</html>",
			"mobileParameters": map[string]any{"placement": "top"},
		})
		require.NoError(t, err)
		assert.Equal(t, "cons-1", msg.PresentationID)
		assert.Equal(t, "mobileapp://com.example.app/home", msg.SurfaceURI)
		assert.Equal(t, "<html>hi</html>", msg.Content)
		assert.Equal(t, "top", msg.Settings["placement"])
	})

	t.Run("missing content is a RequiredFieldError", func(t *testing.T) {
		_, err := NewMessage("cons-1", "mobileapp://com.example.app", map[string]any{
			"mobileParameters": map[string]any{},
		})
		require.Error(t, err)

		var rfe *RequiredFieldError
		require.True(t, errors.As(err, &rfe))
		assert.Equal(t, "content", rfe.Field)
	})

	t.Run("missing id is a RequiredFieldError", func(t *testing.T) {
		_, err := NewMessage("", "mobileapp://com.example.app", map[string]any{
			"content": "x",
		})
		var rfe *RequiredFieldError
		require.True(t, errors.As(err, &rfe))
		assert.Equal(t, "id", rfe.Field)
	})

	t.Run("non-string content counts as missing", func(t *testing.T) {
		_, err := NewMessage("cons-1", "mobileapp://com.example.app", map[string]any{
			"content": 42,
		})
		var rfe *RequiredFieldError
		require.True(t, errors.As(err, &rfe))
	})
}

func TestPresentationRegistry(t *testing.T) {
	reg := NewPresentationRegistry()

	msg, err := NewMessage("cons-1", "mobileapp://com.example.app", map[string]any{"content": "a"})
	require.NoError(t, err)

	reg.Register(msg)
	require.Equal(t, 1, reg.Len())

	got, ok := reg.Lookup("cons-1")
	require.True(t, ok)
	assert.Same(t, msg, got)

	// Re-registering the same id replaces the message.
	msg2, err := NewMessage("cons-1", "mobileapp://com.example.app", map[string]any{"content": "b"})
	require.NoError(t, err)
	reg.Register(msg2)
	got, _ = reg.Lookup("cons-1")
	assert.Same(t, msg2, got)
	assert.Equal(t, 1, reg.Len())

	reg.Remove("cons-1")
	_, ok = reg.Lookup("cons-1")
	assert.False(t, ok)

	reg.Register(msg)
	reg.Clear()
	assert.Equal(t, 0, reg.Len())
}
