package routine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutine(t *testing.T) {
	t.Run("should derive phases from text on creation", func(t *testing.T) {
		r := FromText("Morning", "## Wake\n- Water\n- Stretch *2")

		assert.NotEmpty(t, r.Id)
		require.Len(t, r.Phases(), 1)
		assert.Len(t, r.Items(), 2)
		assert.True(t, SameStructure(r.Phases(), Parse(r.Text())))
	})

	t.Run("should regenerate phases with the text", func(t *testing.T) {
		r := FromText("Morning", "- Water")

		updated := r.WithText("- Water\n- Coffee")

		assert.Len(t, updated.Items(), 2)
		assert.Len(t, r.Items(), 1)
		assert.Equal(t, "- Water\n- Coffee", updated.Text())
	})

	t.Run("should keep item ids when text is unchanged", func(t *testing.T) {
		r := FromText("Morning", "- Water")

		same := r.WithText("- Water")

		assert.Equal(t, r.Items()[0].Id, same.Items()[0].Id)
	})

	t.Run("should find items with their phase", func(t *testing.T) {
		r := FromText("Morning", "## A\n- One\n## B\n- Two")
		two := r.Items()[1]

		item, phase, ok := r.FindItem(two.Id)

		assert.True(t, ok)
		assert.Equal(t, "Two", item.Title)
		assert.Equal(t, "B", phase.Title)
		_, _, ok = r.FindItem("missing")
		assert.False(t, ok)
	})

	t.Run("should expose progress items with weights", func(t *testing.T) {
		r := FromText("Morning", "- One *3")

		items := r.ProgressItems()

		require.Len(t, items, 1)
		assert.Equal(t, 3.0, items[0].Weight)
		assert.Equal(t, "One", items[0].Title)
	})
}

func TestRoutine_JSON(t *testing.T) {
	t.Run("should keep item ids across encoding", func(t *testing.T) {
		r := FromText("Morning", "## A\n- One\n- Two 5min")
		r.Color = "teal"

		data, err := json.Marshal(r)
		require.NoError(t, err)
		var decoded Routine
		require.NoError(t, json.Unmarshal(data, &decoded))

		assert.Equal(t, r.Id, decoded.Id)
		assert.Equal(t, "teal", decoded.Color)
		assert.Equal(t, r.Text(), decoded.Text())
		assert.Equal(t, r.Phases(), decoded.Phases())
	})

	t.Run("should regenerate phases that drifted from the text", func(t *testing.T) {
		data := `{"id":"r1","name":"Morning","text":"- One\n- Two","phases":[{"id":"p","title":"","items":[{"id":"x","title":"Other","weight":1}]}]}`

		var decoded Routine
		require.NoError(t, json.Unmarshal([]byte(data), &decoded))

		require.Len(t, decoded.Items(), 2)
		assert.Equal(t, "One", decoded.Items()[0].Title)
		assert.NotEqual(t, "x", decoded.Items()[0].Id)
	})

	t.Run("should parse text when phases are missing", func(t *testing.T) {
		var decoded Routine
		require.NoError(t, json.Unmarshal([]byte(`{"name":"Evening","text":"- Read"}`), &decoded))

		assert.NotEmpty(t, decoded.Id)
		require.Len(t, decoded.Items(), 1)
		assert.NotEmpty(t, decoded.Items()[0].Id)
	})
}
