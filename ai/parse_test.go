package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScoreArrayCodeFence(t *testing.T) {
	reply := "Here are the scores:\n```json\n[0.8, 0.3, 0.95]\n```\nLet me know if you need anything else."
	scores, err := ParseScoreArray(reply, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0.8, 0.3, 0.95}, scores)
}

func TestParseScoreArrayBareJSON(t *testing.T) {
	scores, err := ParseScoreArray("The scores are [0.1, 0.2, 0.7] as requested.", 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.7}, scores)
}

func TestParseScoreArrayCommaNumbers(t *testing.T) {
	scores, err := ParseScoreArray("0.4, 0.6, 0.8", 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0.4, 0.6, 0.8}, scores)
}

func TestParseScoreArrayNumericTokens(t *testing.T) {
	scores, err := ParseScoreArray("Segment 1 scores 0.9 and segment 2 scores 0.2", 2)
	require.NoError(t, err)
	// "1" and "2" are numeric tokens too, order wins over intent
	require.Equal(t, []float64{1, 0.9}, scores)
}

func TestParseScoreArraySingleNumber(t *testing.T) {
	scores, err := ParseScoreArray("0.8", 1)
	require.NoError(t, err)
	require.Equal(t, []float64{0.8}, scores)
}

func TestParseScoreArrayPadsAndTruncates(t *testing.T) {
	scores, err := ParseScoreArray("[0.9]", 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0.9, 0.5, 0.5}, scores)

	scores, err = ParseScoreArray("[0.1, 0.2, 0.3, 0.4]", 2)
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2}, scores)
}

func TestParseScoreArrayClamps(t *testing.T) {
	scores, err := ParseScoreArray("[-0.5, 1.7, 0.5]", 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 0.5}, scores)
}

func TestParseScoreArrayNoNumbers(t *testing.T) {
	_, err := ParseScoreArray("I cannot help with that.", 3)
	require.Error(t, err)
}

func TestParseCount(t *testing.T) {
	count, err := ParseCount("There are 3 faces visible in this frame.")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	count, err = ParseCount("0")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	_, err = ParseCount("no faces at all")
	require.Error(t, err)
}
