package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItCanGenerateRandomJobIDs(t *testing.T) {
	r := RandomTrailer(50000)
	require.Equal(t, 50000, len(r))

	// Each letter in our set should be present in a random string this long
	charset := "abcdefghijklmnopqrstuvwxyz0123456789"
	for _, char := range charset {
		require.Contains(t, r, string(char))
	}
}

func TestJobIDsAreUniqueAndFilenameSafe(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		require.True(t, strings.HasPrefix(id, "job-"))
		require.Len(t, id, len("job-")+12)
		require.False(t, seen[id], "duplicate job id %s", id)
		seen[id] = true
	}
}
