package interaction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/klokku/ritual/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_UnmarshalJSON(t *testing.T) {
	t.Run("should read the current shape", func(t *testing.T) {
		data := `{"checked":{"a":true,"b":false},"weights":{"stretch":3},"timer":{"itemId":"a","startedAt":"2025-03-01T06:00:00Z"},"moods":{"a":"good"}}`

		var s State
		require.NoError(t, json.Unmarshal([]byte(data), &s))

		assert.Equal(t, map[string]bool{"a": true}, s.Checked)
		assert.Equal(t, 3.0, s.Weights["stretch"])
		require.NotNil(t, s.Timer)
		assert.Equal(t, "a", s.Timer.ItemId)
		assert.Equal(t, MoodGood, s.Moods["a"])
		assert.NotNil(t, s.Declined)
		assert.NotNil(t, s.Reflections)
	})

	t.Run("should normalise legacy shapes", func(t *testing.T) {
		data := `{"completed":["x","y"],"activeTimer":{"itemId":"y","startedAt":"2025-03-01T06:00:00Z"},"moods":{"x":"ecstatic","y":"low"}}`

		var s State
		require.NoError(t, json.Unmarshal([]byte(data), &s))

		assert.Equal(t, map[string]bool{"x": true, "y": true}, s.Checked)
		require.NotNil(t, s.Timer)
		assert.Equal(t, "y", s.Timer.ItemId)
		assert.Equal(t, map[string]Mood{"y": MoodLow}, s.Moods)
	})

	t.Run("should treat numeric flags as checked", func(t *testing.T) {
		var s State
		require.NoError(t, json.Unmarshal([]byte(`{"checked":{"a":1,"b":0,"c":"yes"}}`), &s))

		assert.Equal(t, map[string]bool{"a": true}, s.Checked)
	})

	t.Run("should drop a timer without item", func(t *testing.T) {
		var s State
		require.NoError(t, json.Unmarshal([]byte(`{"timer":{"startedAt":"2025-03-01T06:00:00Z"}}`), &s))

		assert.Nil(t, s.Timer)
	})
}

func TestState_Timer(t *testing.T) {
	now := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

	t.Run("should keep at most one timer", func(t *testing.T) {
		// given
		s := NewState()
		ten := 10

		// when
		_, err := s.StartTimer("a", now, &ten)
		require.NoError(t, err)
		_, err = s.StartTimer("b", now.Add(time.Minute), nil)
		require.NoError(t, err)

		// then
		require.NotNil(t, s.Timer)
		assert.Equal(t, "b", s.Timer.ItemId)
		assert.Nil(t, s.Timer.DurationMinutes)
	})

	t.Run("should compute remaining countdown", func(t *testing.T) {
		ten := 10
		timer := ActiveTimer{ItemId: "a", StartedAt: now, DurationMinutes: &ten}

		left, ok := timer.Remaining(now.Add(4 * time.Minute))
		assert.True(t, ok)
		assert.Equal(t, 6*time.Minute, left)

		left, _ = timer.Remaining(now.Add(time.Hour))
		assert.Equal(t, time.Duration(0), left)
	})

	t.Run("should reject empty item", func(t *testing.T) {
		s := NewState()
		_, err := s.StartTimer("", now, nil)
		assert.ErrorIs(t, err, ErrEmptyItemId)
	})
}

func TestState_Mutations(t *testing.T) {
	t.Run("should toggle and forget", func(t *testing.T) {
		s := NewState()
		assert.True(t, s.Toggle("a"))
		assert.False(t, s.Toggle("a"))
		s.Toggle("a")
		require.NoError(t, s.SetMood("a", MoodGreat))
		s.SetReflection("a", "felt calm")
		_, _ = s.StartTimer("a", time.Now(), nil)

		s.Forget("a")

		assert.Empty(t, s.Checked)
		assert.Empty(t, s.Moods)
		assert.Empty(t, s.Reflections)
		assert.Nil(t, s.Timer)
	})

	t.Run("should reject unknown mood", func(t *testing.T) {
		s := NewState()
		assert.ErrorIs(t, s.SetMood("a", "meh"), ErrInvalidMood)
	})

	t.Run("should not duplicate dismissed suggestions", func(t *testing.T) {
		s := NewState()
		s.DismissSuggestion("s1")
		s.DismissSuggestion("s1")
		assert.Equal(t, []string{"s1"}, s.DismissedSuggestions)
	})

	t.Run("should clamp weight overrides", func(t *testing.T) {
		s := NewState()
		s.SetWeight("stretch", -2)
		assert.Equal(t, 1.0, s.Weights["stretch"])
	})

	t.Run("should clone deeply", func(t *testing.T) {
		s := NewState()
		s.Toggle("a")
		c := s.Clone()
		c.Toggle("b")
		assert.Len(t, s.Checked, 1)
	})

	t.Run("should compute progress with overrides", func(t *testing.T) {
		s := NewState()
		s.Toggle("a")
		s.SetWeight("stretch", 4)

		p := s.Progress([]progress.Item{{Id: "a", Title: "stretch", Weight: 1}, {Id: "b", Title: "read", Weight: 1}})

		assert.Equal(t, 5.0, p.Capacity)
		assert.Equal(t, 4.0, p.Energy)
	})
}
