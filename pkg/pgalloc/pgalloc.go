// Copyright 2026 The Basalt Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgalloc provides the physical-frame allocation boundary consumed
// by the task core. Kernel stacks and trap frames are backed by frame
// grants; each grant is released exactly once when the owning task's last
// reference is dropped.
package pgalloc

import (
	"fmt"

	"basalt.dev/basalt/pkg/atomicbitops"
	"basalt.dev/basalt/pkg/errors"
	"basalt.dev/basalt/pkg/sync"
)

// PageSize is the size of a physical frame.
const PageSize = 1 << 12

// Allocator supplies contiguous physical frames. Implementations must be
// safe for concurrent use.
type Allocator interface {
	// Allocate returns a grant of the given number of contiguous frames, or
	// errors.ErrResourceExhausted if the request cannot be satisfied.
	Allocate(pages int) (*FrameTracker, error)
}

// FrameTracker is an owning grant of contiguous physical frames. Release
// returns the frames to the allocator; releasing a grant twice is a fatal
// error.
type FrameTracker struct {
	base    uint64
	pages   int
	free    func()
	freed   atomicbitops.Bool
}

// NewFrameTracker returns a grant covering pages frames starting at base.
// free is invoked exactly once, on the first Release.
func NewFrameTracker(base uint64, pages int, free func()) *FrameTracker {
	return &FrameTracker{base: base, pages: pages, free: free}
}

// Base returns the physical address of the first frame.
func (ft *FrameTracker) Base() uint64 {
	return ft.base
}

// End returns the physical address just past the last frame.
func (ft *FrameTracker) End() uint64 {
	return ft.base + uint64(ft.pages)*PageSize
}

// Pages returns the number of frames in the grant.
func (ft *FrameTracker) Pages() int {
	return ft.pages
}

// Release returns the frames to the allocator.
func (ft *FrameTracker) Release() {
	if ft.freed.Swap(true) {
		panic(fmt.Sprintf("FrameTracker(%#x, %d pages): double release", ft.base, ft.pages))
	}
	if ft.free != nil {
		ft.free()
	}
}

// Pool is a capacity-limited Allocator. It tracks outstanding grants, which
// makes exactly-once reclamation observable in tests, and hands out
// monotonically increasing physical addresses starting at the platform RAM
// base.
type Pool struct {
	mu sync.Mutex

	// totalPages bounds the number of simultaneously live pages.
	totalPages int

	// usedPages is the number of currently granted pages.
	usedPages int

	// nextBase is the address of the next grant. Addresses are never
	// reused; the model only tracks live page counts.
	nextBase uint64

	// grants counts outstanding FrameTrackers.
	grants atomicbitops.Int64
}

// ramBase is where granted addresses begin. The value matches the RAM base
// of the primary target platform.
const ramBase = 0x8020_0000

// NewPool returns a Pool that can keep at most totalPages frames live.
func NewPool(totalPages int) *Pool {
	return &Pool{
		totalPages: totalPages,
		nextBase:   ramBase,
	}
}

// Allocate implements Allocator.Allocate.
func (p *Pool) Allocate(pages int) (*FrameTracker, error) {
	if pages <= 0 {
		panic(fmt.Sprintf("Pool.Allocate: invalid page count %d", pages))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usedPages+pages > p.totalPages {
		return nil, errors.ErrResourceExhausted
	}
	base := p.nextBase
	p.nextBase += uint64(pages) * PageSize
	p.usedPages += pages
	p.grants.Add(1)
	return NewFrameTracker(base, pages, func() {
		p.mu.Lock()
		p.usedPages -= pages
		p.mu.Unlock()
		p.grants.Add(-1)
	}), nil
}

// Outstanding returns the number of grants that have been allocated but not
// yet released.
func (p *Pool) Outstanding() int64 {
	return p.grants.Load()
}

// UsedPages returns the number of currently granted pages.
func (p *Pool) UsedPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usedPages
}
