package ulid

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     io.Reader
	entropyOnce sync.Once
	generator   = DefaultGenerator
)

// DefaultEntropy returns a reader that generates ULID entropy.
func DefaultEntropy() io.Reader {
	entropyOnce.Do(func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		entropy = &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rng, 0),
		}
	})
	return entropy
}

// ValidID checks if the given id is a valid ULID.
func ValidID(id string) bool {
	parsed, err := ulid.Parse(id)
	return err == nil && parsed.String() == id
}

// GenerateID generates a new universal ID. Cell and document handles
// are ULIDs so they sort by creation time and never collide within a
// process.
func GenerateID() string {
	return generator()
}

func DefaultGenerator() string {
	entropy := DefaultEntropy()
	ts := ulid.Timestamp(time.Now())
	return ulid.MustNew(ts, entropy).String()
}

func ResetGenerator() {
	generator = DefaultGenerator
}

// MockGenerator makes GenerateID return a fixed value. Tests use it to
// assert on handles without capturing them first.
func MockGenerator(mockValue string) {
	generator = func() string {
		return mockValue
	}
}
