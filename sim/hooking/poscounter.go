package hooking

import "sync"

// PosCounter is a hook that counts how many times each hook position fires.
// It is safe to read from another goroutine while the simulation runs.
type PosCounter struct {
	lock     sync.Mutex
	posNames []string
	count    map[string]uint64
}

// NewPosCounter creates a new PosCounter.
func NewPosCounter() *PosCounter {
	return &PosCounter{
		count: make(map[string]uint64),
	}
}

// Func counts the position of the invocation.
func (c *PosCounter) Func(ctx HookCtx) {
	if ctx.Pos == nil {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.count[ctx.Pos.Name]; !ok {
		c.posNames = append(c.posNames, ctx.Pos.Name)
	}

	c.count[ctx.Pos.Name]++
}

// PosNames returns the names of the positions seen so far, in first-seen
// order.
func (c *PosCounter) PosNames() []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	names := make([]string, len(c.posNames))
	copy(names, c.posNames)

	return names
}

// Count returns the number of invocations at the given position.
func (c *PosCounter) Count(pos *HookPos) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.count[pos.Name]
}

// Counts returns a copy of the counts keyed by position name.
func (c *PosCounter) Counts() map[string]uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	counts := make(map[string]uint64, len(c.count))
	for name, n := range c.count {
		counts[name] = n
	}

	return counts
}
