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

package pgalloc

import (
	"testing"

	"basalt.dev/basalt/pkg/errors"
)

func TestAllocateRelease(t *testing.T) {
	p := NewPool(8)
	ft, err := p.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate(4) failed: %v", err)
	}
	if ft.Pages() != 4 {
		t.Errorf("got %d pages, want 4", ft.Pages())
	}
	if got, want := ft.End()-ft.Base(), uint64(4*PageSize); got != want {
		t.Errorf("grant covers %#x bytes, want %#x", got, want)
	}
	if p.Outstanding() != 1 {
		t.Errorf("Outstanding() = %d, want 1", p.Outstanding())
	}
	ft.Release()
	if p.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after release, want 0", p.Outstanding())
	}
	if p.UsedPages() != 0 {
		t.Errorf("UsedPages() = %d after release, want 0", p.UsedPages())
	}
}

func TestExhaustion(t *testing.T) {
	p := NewPool(4)
	ft, err := p.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate(4) failed: %v", err)
	}
	if _, err := p.Allocate(1); err != errors.ErrResourceExhausted {
		t.Fatalf("Allocate(1) on a full pool: got err %v, want ErrResourceExhausted", err)
	}
	ft.Release()
	if _, err := p.Allocate(1); err != nil {
		t.Fatalf("Allocate(1) after release failed: %v", err)
	}
}

func TestGrantsDoNotAlias(t *testing.T) {
	p := NewPool(16)
	a, err := p.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	b, err := p.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if a.End() > b.Base() && b.End() > a.Base() {
		t.Errorf("grants overlap: [%#x, %#x) and [%#x, %#x)", a.Base(), a.End(), b.Base(), b.End())
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p := NewPool(4)
	ft, err := p.Allocate(1)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	ft.Release()
	defer func() {
		if recover() == nil {
			t.Errorf("double release did not panic")
		}
	}()
	ft.Release()
}
