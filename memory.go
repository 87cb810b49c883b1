package imp

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/imp/gpucore"
)

// ErrMemoryBudgetExceeded is returned when an allocation does not fit the
// memory budget even after evicting every purgeable texture.
var ErrMemoryBudgetExceeded = errors.New("imp: memory budget exceeded")

// MemoryStats contains texture allocation statistics of a Context.
type MemoryStats struct {
	// BudgetBytes is the memory budget in bytes. Zero means unlimited.
	BudgetBytes uint64

	// UsedBytes is the memory held by live textures.
	UsedBytes uint64

	// TextureCount is the number of live textures.
	TextureCount int

	// PurgeableCount is the number of live textures marked purgeable.
	PurgeableCount int

	// Allocations is the total number of textures allocated.
	Allocations uint64

	// Purges is the total number of textures marked purgeable.
	Purges uint64

	// Evictions is the total number of purgeable textures destroyed to make
	// room.
	Evictions uint64
}

// Utilization returns UsedBytes/BudgetBytes, or 0 without a budget.
func (s MemoryStats) Utilization() float64 {
	if s.BudgetBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.BudgetBytes)
}

// String returns a human-readable summary.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d textures (%d purgeable), %d KB, %d allocations, %d purges, %d evictions]",
		s.TextureCount, s.PurgeableCount, s.UsedBytes/1024, s.Allocations, s.Purges, s.Evictions)
}

// textureEntry tracks a texture with its LRU position.
type textureEntry struct {
	texture   gpucore.Texture
	sizeBytes uint64
	element   *list.Element
}

// allocator tracks every texture a Context allocates and evicts purgeable
// ones, least recently used first, to stay within the budget.
//
// allocator is safe for concurrent use.
type allocator struct {
	mu sync.Mutex

	dev   gpucore.Device
	drain func()

	budget uint64
	used   uint64

	textures map[gpucore.Texture]*textureEntry

	// front = most recently used
	lru *list.List

	allocations uint64
	purges      uint64
	evictions   uint64

	closed bool
}

func newAllocator(dev gpucore.Device, budget uint64, drain func()) *allocator {
	return &allocator{
		dev:      dev,
		drain:    drain,
		budget:   budget,
		textures: make(map[gpucore.Texture]*textureEntry),
		lru:      list.New(),
	}
}

// texture allocates a texture, evicting purgeable textures when the budget
// requires it.
func (a *allocator) texture(desc gpucore.TextureDescriptor) (gpucore.Texture, error) {
	required := uint64(desc.ByteSize())

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrContextClosed
	}
	if a.budget > 0 && required > a.budget {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: texture of %d KB exceeds budget of %d KB",
			ErrMemoryBudgetExceeded, required/1024, a.budget/1024)
	}
	victims := a.victimsLocked(required)
	a.mu.Unlock()

	if len(victims) > 0 {
		// Committed work may still read an evicted texture.
		a.drain()
		for _, t := range victims {
			t.Destroy()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.budget > 0 && a.used+required > a.budget {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrMemoryBudgetExceeded, required, a.used, a.budget)
	}
	tex, err := a.dev.NewTexture(desc)
	if err != nil {
		return nil, err
	}
	e := &textureEntry{texture: tex, sizeBytes: required}
	e.element = a.lru.PushFront(e)
	a.textures[tex] = e
	a.used += required
	a.allocations++
	Logger().Debug("imp: texture allocated", "label", desc.Label, "size", desc.Size().String(), "bytes", required)
	return tex, nil
}

// victimsLocked unregisters purgeable textures from the LRU end until
// required more bytes fit. Caller must hold mu.
func (a *allocator) victimsLocked(required uint64) []gpucore.Texture {
	if a.budget == 0 || a.used+required <= a.budget {
		return nil
	}
	var victims []gpucore.Texture
	for el := a.lru.Back(); el != nil && a.used+required > a.budget; {
		prev := el.Prev()
		e, _ := el.Value.(*textureEntry)
		if e != nil && e.texture.Purgeable() {
			a.removeLocked(e)
			victims = append(victims, e.texture)
			a.evictions++
		}
		el = prev
	}
	return victims
}

// touch marks tex as recently used.
func (a *allocator) touch(tex gpucore.Texture) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.textures[tex]; ok {
		a.lru.MoveToFront(e.element)
	}
}

// purge marks tex purgeable so a later allocation may evict it.
func (a *allocator) purge(tex gpucore.Texture) {
	if tex == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.textures[tex]; !ok {
		return
	}
	tex.SetPurgeable(true)
	a.purges++
}

// release destroys tex now.
func (a *allocator) release(tex gpucore.Texture) {
	if tex == nil {
		return
	}
	a.mu.Lock()
	e, ok := a.textures[tex]
	if ok {
		a.removeLocked(e)
	}
	a.mu.Unlock()
	if ok {
		tex.Destroy()
	}
}

func (a *allocator) removeLocked(e *textureEntry) {
	a.lru.Remove(e.element)
	delete(a.textures, e.texture)
	a.used -= e.sizeBytes
}

func (a *allocator) stats() MemoryStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := MemoryStats{
		BudgetBytes:  a.budget,
		UsedBytes:    a.used,
		TextureCount: len(a.textures),
		Allocations:  a.allocations,
		Purges:       a.purges,
		Evictions:    a.evictions,
	}
	for t := range a.textures {
		if t.Purgeable() {
			s.PurgeableCount++
		}
	}
	return s
}

// close destroys every tracked texture.
func (a *allocator) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for t := range a.textures {
		t.Destroy()
	}
	a.textures = nil
	a.lru = nil
	a.used = 0
	a.closed = true
}
