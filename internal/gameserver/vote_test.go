package gameserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBallot_Tally(t *testing.T) {
	t.Run("single leader wins", func(t *testing.T) {
		b := NewBallot()
		b.Cast("a", "volcano_park")
		b.Cast("b", "volcano_park")
		b.Cast("c", "forest_park")

		winner, ok := b.Tally([]string{"other"}, nil)
		require.True(t, ok)
		assert.Equal(t, "volcano_park", winner)
	})

	t.Run("ties are drawn from the tied maps", func(t *testing.T) {
		b := NewBallot()
		b.Cast("a", "volcano_park")
		b.Cast("b", "forest_park")
		b.Cast("c", "forest_park")
		b.Cast("d", "volcano_park")
		b.Cast("e", "lake_park")

		assert.Equal(t, []string{"forest_park", "volcano_park"}, b.Leaders())

		var sizes []int
		pick := func(n int) int {
			sizes = append(sizes, n)
			return n - 1
		}
		winner, ok := b.Tally(nil, pick)
		require.True(t, ok)
		assert.Equal(t, "volcano_park", winner)
		assert.Equal(t, []int{2}, sizes)

		for i := 0; i < 50; i++ {
			w, _ := b.Tally(nil, nil)
			assert.Contains(t, []string{"forest_park", "volcano_park"}, w)
		}
	})

	t.Run("no votes draws from candidates", func(t *testing.T) {
		winner, ok := NewBallot().Tally([]string{"a", "b", "c"}, func(n int) int {
			assert.Equal(t, 3, n)
			return 1
		})
		require.True(t, ok)
		assert.Equal(t, "b", winner)
	})

	t.Run("no votes and no candidates", func(t *testing.T) {
		winner, ok := NewBallot().Tally(nil, nil)
		assert.False(t, ok)
		assert.Empty(t, winner)
	})

	t.Run("counts", func(t *testing.T) {
		b := NewBallot()
		b.Cast("a", "x")
		b.Cast("b", "x")
		b.Cast("a", "y")
		assert.Equal(t, map[string]int{"x": 1, "y": 1}, b.Counts())
		assert.Equal(t, 2, b.Len())
	})
}
