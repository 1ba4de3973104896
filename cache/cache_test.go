package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testJobInfo struct {
	SourceFile string
}

func TestStoreAndRetrieve(t *testing.T) {
	c := New[testJobInfo]()
	c.Store(
		"some-job-id",
		testJobInfo{
			SourceFile: "/data/uploads/some-job-id.mp4",
		},
	)
	require.Equal(t, "/data/uploads/some-job-id.mp4", c.Get("some-job-id").SourceFile)
	require.Equal(t, 1, c.Count())
}

func TestStoreAndRemove(t *testing.T) {
	c := New[testJobInfo]()
	c.Store(
		"some-job-id",
		testJobInfo{
			SourceFile: "/data/uploads/some-job-id.mp4",
		},
	)
	require.Equal(t, "/data/uploads/some-job-id.mp4", c.Get("some-job-id").SourceFile)

	c.Remove("some-job-id")
	require.Equal(t, "", c.Get("some-job-id").SourceFile)
	require.Equal(t, 0, c.Count())
}

func TestGetAllReturnsACopy(t *testing.T) {
	c := New[testJobInfo]()
	c.Store("a", testJobInfo{SourceFile: "one"})
	c.Store("b", testJobInfo{SourceFile: "two"})

	all := c.GetAll()
	require.Len(t, all, 2)
	delete(all, "a")
	require.Equal(t, "one", c.Get("a").SourceFile)
	require.ElementsMatch(t, []string{"a", "b"}, c.GetKeys())
}
