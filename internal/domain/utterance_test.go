package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestMergeUtterances(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		out := MergeUtterances(nil)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("same speaker merged", func(t *testing.T) {
		out := MergeUtterances([]Utterance{
			{Speaker: strPtr("A"), Text: "Hello", Start: floatPtr(0), End: floatPtr(1)},
			{Speaker: strPtr("A"), Text: "  world ", Start: floatPtr(1), End: floatPtr(2)},
			{Speaker: strPtr("B"), Text: "Hi"},
		})

		assert.Equal(t, []Utterance{
			{Speaker: strPtr("A"), Text: "Hello world", Start: floatPtr(0), End: floatPtr(2)},
			{Speaker: strPtr("B"), Text: "Hi"},
		}, out)
	})

	t.Run("null speakers are equal", func(t *testing.T) {
		out := MergeUtterances([]Utterance{
			{Text: "x"},
			{Text: "y"},
		})
		assert.Equal(t, []Utterance{{Text: "x y"}}, out)
	})

	t.Run("null and named speakers differ", func(t *testing.T) {
		out := MergeUtterances([]Utterance{
			{Text: "x"},
			{Speaker: strPtr("A"), Text: "y"},
			{Text: "z"},
		})
		assert.Len(t, out, 3)
	})

	t.Run("missing end keeps earlier end", func(t *testing.T) {
		out := MergeUtterances([]Utterance{
			{Speaker: strPtr("A"), Text: "a", End: floatPtr(3)},
			{Speaker: strPtr("A"), Text: "b"},
		})
		assert.Equal(t, floatPtr(3), out[0].End)
	})

	t.Run("input is untouched", func(t *testing.T) {
		in := []Utterance{
			{Speaker: strPtr("A"), Text: "a"},
			{Speaker: strPtr("A"), Text: "b"},
		}
		MergeUtterances(in)
		assert.Equal(t, "a", in[0].Text)
	})
}

func TestMergeUtterancesProperties(t *testing.T) {
	t.Parallel()

	speakers := []*string{strPtr("A"), strPtr("B"), nil}
	var in []Utterance
	for i := 0; i < 60; i++ {
		in = append(in, Utterance{Speaker: speakers[(i*i/3)%3], Text: "w"})
	}

	out := MergeUtterances(in)

	// No two adjacent outputs share a speaker.
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].SameSpeaker(out[i-1]), "adjacent outputs %d and %d share a speaker", i-1, i)
	}

	// Merging is idempotent.
	assert.Equal(t, out, MergeUtterances(out))

	// Output never grows and word count is preserved.
	assert.LessOrEqual(t, len(out), len(in))
	words := 0
	for _, u := range out {
		for _, r := range u.Text {
			if r == 'w' {
				words++
			}
		}
	}
	assert.Equal(t, len(in), words)
}

func TestPublicUtterances(t *testing.T) {
	t.Parallel()

	out := PublicUtterances([]Utterance{{Speaker: strPtr("A"), Text: "hi", Start: floatPtr(1)}})
	assert.Equal(t, []PublicUtterance{{Speaker: strPtr("A"), Text: "hi"}}, out)
}
