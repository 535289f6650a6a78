// Package id generates run identifiers and order id sequences.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed from crypto/rand; Monotonic keeps ids minted in the same
	// millisecond increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the wall clock.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID string stamped with t, so run ids can sort by the
// simulated start time instead of the wall clock.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// only on entropy failure or a timestamp past year 10889
		panic(err)
	}
	return id.String()
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Sequence hands out increasing uint64 ids starting at 1.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 { return s.n.Add(1) }

// Last is the most recently issued id, or 0.
func (s *Sequence) Last() uint64 { return s.n.Load() }
