package pipeline

import (
	"errors"
	"fmt"
)

// Pool size bounds, inclusive.
const (
	MinThreads = 1
	MaxThreads = 10

	// DefaultCapacityFactor sizes the buffer as a multiple of all workers
	// when no capacity is configured.
	DefaultCapacityFactor = 2
	DefaultPageSize       = 500
)

// ErrInvalidThreads is returned for a pool size outside [MinThreads, MaxThreads].
var ErrInvalidThreads = errors.New("thread count out of range")

// PoolConfig sizes the worker pools and the buffer between them. Thread
// counts and capacity are independent.
type PoolConfig struct {
	Producers int
	Consumers int
	Capacity  int // 0 selects DefaultCapacityFactor × (Producers + Consumers)
	PageSize  int // 0 selects DefaultPageSize
}

func (c PoolConfig) Validate() error {
	if c.Producers < MinThreads || c.Producers > MaxThreads {
		return fmt.Errorf("producers %d: %w [%d,%d]", c.Producers, ErrInvalidThreads, MinThreads, MaxThreads)
	}
	if c.Consumers < MinThreads || c.Consumers > MaxThreads {
		return fmt.Errorf("consumers %d: %w [%d,%d]", c.Consumers, ErrInvalidThreads, MinThreads, MaxThreads)
	}
	return nil
}

// BufferCapacity returns the configured capacity or the default. A negative
// configured capacity is passed through so buffer construction rejects it.
func (c PoolConfig) BufferCapacity() int {
	if c.Capacity != 0 {
		return c.Capacity
	}
	return DefaultCapacityFactor * (c.Producers + c.Consumers)
}

func (c PoolConfig) pageSize() int {
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		return DefaultPageSize
	}
	return c.PageSize
}
