package config

import (
	"math/rand"
	"time"
)

var r = rand.New(rand.NewSource(time.Now().UnixNano()))

func RandomTrailer(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	res := make([]byte, length)
	for i := 0; i < length; i++ {
		res[i] = charset[r.Intn(len(charset))]
	}
	return string(res)
}

// NewJobID returns a fresh opaque job identifier. IDs prefix every file a job
// writes under the storage root, so they must be safe in file names.
func NewJobID() string {
	return "job-" + RandomTrailer(12)
}
