package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	rng  *rand.Rand
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so IDs are unpredictable. ulid.Monotonic
	// keeps event IDs generated within the same millisecond lexicographically
	// increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng = rand.New(rand.NewSource(seed))
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewTrade returns a 10-digit numeric trade identifier. Digits keep trade IDs
// URL-safe and match the broker-style ticket numbers the durable store is
// keyed by. Uniqueness is the caller's responsibility (check ledger + store).
func NewTrade() string {
	mu.Lock()
	defer mu.Unlock()

	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = byte('0' + rng.Intn(10))
	}
	return string(buf)
}

// FallbackTrade derives a trade ID from the current timestamp. Used when
// repeated random draws keep colliding with existing IDs.
func FallbackTrade(now time.Time) string {
	s := fmt.Sprintf("%d", now.UnixMilli())
	if len(s) > 10 {
		s = s[len(s)-10:]
	}
	return s
}

// NewEvent returns a ULID string (time-sortable identifier) for notifier
// events, so subscribers can order events without trusting arrival order.
func NewEvent() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Errors are extremely unlikely unless time goes backwards or entropy fails.
		panic(err)
	}
	return id.String()
}
