package generator

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
// This can be used to generate unique identifiers, lazily iterate, etc.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
// It implements the Generator interface.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// CustomSoundIDGenerator produces "custom_<unix millis>" identifiers for
// uploaded sounds. Two calls within the same millisecond still get distinct
// IDs because the value never goes backwards.
type CustomSoundIDGenerator struct {
	Now func() time.Time

	mu   sync.Mutex
	last int64
}

const CustomSoundPrefix = "custom_"

func (g *CustomSoundIDGenerator) Next() (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return CustomSoundPrefix + strconv.FormatInt(ms, 10), nil
}

var _ Generator[string] = &CustomSoundIDGenerator{}
