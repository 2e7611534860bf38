// Package codes manages the finite supply of room codes. The whole decimal
// universe of the configured width is generated once at startup and
// shuffled; rooms pop a code when created and push it back when destroyed.
package codes

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/types"
)

// Pool is a mutex-guarded stack of available room codes. A popped code is
// owned by the caller until it is either installed in the registry or
// pushed back.
type Pool struct {
	mu    sync.Mutex
	codes []types.RoomCode
}

// NewPool enumerates every decimal string of the given width and shuffles
// them. Width must be between 1 and 9.
func NewPool(width int) (*Pool, error) {
	if width < 1 || width > 9 {
		return nil, fmt.Errorf("room code length must be between 1 and 9 (got %d)", width)
	}

	total := 1
	for i := 0; i < width; i++ {
		total *= 10
	}

	codes := make([]types.RoomCode, total)
	for i := 0; i < total; i++ {
		codes[i] = types.RoomCode(fmt.Sprintf("%0*d", width, i))
	}
	rand.Shuffle(total, func(i, j int) {
		codes[i], codes[j] = codes[j], codes[i]
	})

	return &Pool{codes: codes}, nil
}

// Pop removes and returns the last available code. When the pool is empty
// it returns OutOfRoomCodes.
func (p *Pool) Pop() (types.RoomCode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.codes) == 0 {
		return "", errs.OutOfRoomCodes()
	}
	code := p.codes[len(p.codes)-1]
	p.codes = p.codes[:len(p.codes)-1]
	return code, nil
}

// Push returns a code to the pool.
func (p *Pool) Push(code types.RoomCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, code)
}

// Len reports how many codes remain available.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.codes)
}
