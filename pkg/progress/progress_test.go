package progress

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWeight(t *testing.T) {
	t.Run("should keep valid weights", func(t *testing.T) {
		assert.Equal(t, 3.0, SafeWeight(3, 1))
		assert.Equal(t, 1.0, SafeWeight(1, 4))
	})

	t.Run("should replace corrupted values with fallback", func(t *testing.T) {
		assert.Equal(t, 2.0, SafeWeight(math.NaN(), 2))
		assert.Equal(t, 2.0, SafeWeight(-3, 2))
		assert.Equal(t, 2.0, SafeWeight(0.5, 2))
		assert.Equal(t, 2.0, SafeWeight(math.Inf(1), 2))
	})

	t.Run("should use 1 when fallback is unusable", func(t *testing.T) {
		assert.Equal(t, 1.0, SafeWeight(math.NaN(), math.NaN()))
		assert.Equal(t, 1.0, SafeWeight(-1, 0))
	})

	t.Run("should be idempotent", func(t *testing.T) {
		for _, f := range []float64{1, 2, 4.5} {
			for _, x := range []float64{math.NaN(), -3, 0, 1, 2.5, 7, math.Inf(-1)} {
				once := SafeWeight(x, f)
				assert.Equal(t, once, SafeWeight(once, f))
			}
		}
	})
}

func TestCompute(t *testing.T) {
	items := []Item{
		{Id: "a", Title: "stretch", Weight: 1},
		{Id: "b", Title: "read", Weight: 3},
		{Id: "c", Title: "walk", Weight: 2},
	}

	t.Run("should sum own weights without overrides", func(t *testing.T) {
		// when
		p := Compute(items, map[string]bool{"b": true}, nil)

		// then
		assert.Equal(t, 6.0, p.Capacity)
		assert.Equal(t, 3.0, p.Energy)
		assert.Equal(t, 3.0, p.Stamina)
		assert.Equal(t, 0.5, p.Ratio)
		assert.Equal(t, 1, p.Done)
		assert.Equal(t, 3, p.Total)
	})

	t.Run("should apply title overrides and ignore corrupted ones", func(t *testing.T) {
		// given
		weights := TitleWeights{"stretch": 5, "walk": math.NaN()}

		// when
		p := Compute(items, map[string]bool{"a": true, "c": false}, weights)

		// then
		assert.Equal(t, 10.0, p.Capacity)
		assert.Equal(t, 5.0, p.Energy)
		assert.Equal(t, 1, p.Done)
	})

	t.Run("should share overrides between items with the same title", func(t *testing.T) {
		dup := []Item{{Id: "x", Title: "stretch", Weight: 1}, {Id: "y", Title: "stretch", Weight: 2}}

		p := Compute(dup, nil, TitleWeights{"stretch": 4})

		assert.Equal(t, 8.0, p.Capacity)
	})

	t.Run("should report zero ratio without capacity", func(t *testing.T) {
		p := Compute(nil, map[string]bool{"ghost": true}, nil)

		assert.Equal(t, 0.0, p.Capacity)
		assert.Equal(t, 0.0, p.Ratio)
		assert.Equal(t, 1, p.Done)
		assert.Equal(t, 0, p.Total)
	})

	t.Run("should keep energy within capacity", func(t *testing.T) {
		checked := map[string]bool{"a": true, "b": true, "c": true, "unknown": true}

		p := Compute(items, checked, TitleWeights{"read": -10})

		assert.GreaterOrEqual(t, p.Energy, 0.0)
		assert.LessOrEqual(t, p.Energy, p.Capacity)
		assert.Equal(t, 1.0, p.Ratio)
	})
}

func TestTitleWeights_UnmarshalJSON(t *testing.T) {
	t.Run("should drop non numeric entries", func(t *testing.T) {
		var w TitleWeights
		err := json.Unmarshal([]byte(`{"a":2,"b":"3","c":"x","d":null,"e":[1]}`), &w)

		require.NoError(t, err)
		assert.Equal(t, TitleWeights{"a": 2, "b": 3}, w)
	})

	t.Run("should tolerate a non object", func(t *testing.T) {
		var w TitleWeights
		err := json.Unmarshal([]byte(`[1,2]`), &w)

		require.NoError(t, err)
		assert.Empty(t, w)
	})
}

func TestSoftCapReached(t *testing.T) {
	assert.True(t, SoftCapReached(Progress{Capacity: 10, Ratio: 0.9}, 0.9))
	assert.False(t, SoftCapReached(Progress{Capacity: 10, Ratio: 0.8}, 0.9))
	assert.True(t, SoftCapReached(Progress{Capacity: 10, Ratio: 0.95}, math.NaN()))
	assert.False(t, SoftCapReached(Progress{}, 0.5))
}
