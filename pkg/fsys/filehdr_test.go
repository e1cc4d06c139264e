/*
Copyright 2024 The Corekernel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fsys

import (
	"errors"
	"testing"
	"time"

	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

// withCache boots a single kernel thread and hands fn a Cache backed by
// a fresh in-memory disk, for tests that need FileHeader's indirect
// sector plumbing without the rest of the filesystem.
func withCache(t *testing.T, numSectors int, fn func(cache *Cache)) {
	t.Helper()
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 4)
	disk := machine.NewDisk(diskstore.NewMemBackend(numSectors, SectorSize))
	done := make(chan struct{})

	k.Boot("main", thread.MinPriority, func(any) {
		defer close(done)
		fn(NewCache(k, disk, 4))
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cache test did not complete")
	}
}

func TestFileHeaderAllocateDirectOnly(t *testing.T) {
	freeMap := NewBitMap(64)
	// Reserve sector 0, as a formatted disk does, so a zero pointer below
	// really means "unset" rather than "allocated sector 0".
	freeMap.Mark(FreeMapSector)
	h := &FileHeader{}
	if err := h.Allocate(freeMap, 3*SectorSize); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h.FileLength() != 3*SectorSize {
		t.Fatalf("FileLength = %d, want %d", h.FileLength(), 3*SectorSize)
	}
	if int(h.numSectors) != 3 {
		t.Fatalf("numSectors = %d, want 3", h.numSectors)
	}
	if freeMap.NumClear() != 64-1-3 {
		t.Fatalf("NumClear = %d, want %d", freeMap.NumClear(), 64-1-3)
	}
	for i, s := range h.dataSectors[:3] {
		if s == 0 {
			t.Fatalf("dataSectors[%d] unset", i)
		}
	}
}

func TestFileHeaderAllocateTooLarge(t *testing.T) {
	freeMap := NewBitMap(MaxFileSectors + 16)
	h := &FileHeader{}
	err := h.Allocate(freeMap, (MaxFileSectors+1)*SectorSize)
	if !errors.Is(err, kerrors.ErrHeaderTooLarge) {
		t.Fatalf("Allocate beyond MaxFileSectors = %v, want ErrHeaderTooLarge", err)
	}
}

func TestFileHeaderAllocateNoFreeSector(t *testing.T) {
	freeMap := NewBitMap(4)
	for i := 0; i < 3; i++ {
		freeMap.Mark(i)
	}
	h := &FileHeader{}
	err := h.Allocate(freeMap, 2*SectorSize)
	if !errors.Is(err, kerrors.ErrNoFreeSector) {
		t.Fatalf("Allocate with one free sector for a 2-sector file = %v, want ErrNoFreeSector", err)
	}
}

func TestFileHeaderDeallocateReturnsSectorsToFreeMap(t *testing.T) {
	freeMap := NewBitMap(64)
	h := &FileHeader{}
	if err := h.Allocate(freeMap, 5*SectorSize); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	before := freeMap.NumClear()
	h.Deallocate(freeMap)
	if got, want := freeMap.NumClear(), before+5; got != want {
		t.Fatalf("NumClear after Deallocate = %d, want %d", got, want)
	}
}

// TestFileHeaderGrowsAcrossIndirectBoundary exercises Grow allocating
// past NumFirstIndex direct sectors into the first indirect block, then
// verifies every sector index -- direct and indirect -- resolves to a
// distinct, previously-free sector.
func TestFileHeaderGrowsAcrossIndirectBoundary(t *testing.T) {
	withCache(t, 512, func(cache *Cache) {
		freeMap := NewBitMap(512)
		h := &FileHeader{cache: cache}
		if err := h.Allocate(freeMap, (NumFirstIndex-1)*SectorSize); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		// Grow by enough to cross the direct/indirect boundary.
		if err := h.Grow(freeMap, 5*SectorSize); err != nil {
			t.Fatalf("Grow: %v", err)
		}
		wantSectors := NumFirstIndex - 1 + 5
		if int(h.numSectors) != wantSectors {
			t.Fatalf("numSectors = %d, want %d", h.numSectors, wantSectors)
		}

		seen := make(map[int]bool)
		for i := 0; i < wantSectors; i++ {
			sector, err := h.IndexToSector(i)
			if err != nil {
				t.Fatalf("IndexToSector(%d): %v", i, err)
			}
			if seen[sector] {
				t.Fatalf("sector %d addressed by more than one index", sector)
			}
			seen[sector] = true
		}
	})
}

func TestFileHeaderGrowFastPathWithinAllocatedTail(t *testing.T) {
	freeMap := NewBitMap(64)
	h := &FileHeader{}
	if err := h.Allocate(freeMap, 1); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	before := freeMap.NumClear()
	// The single allocated sector has room for SectorSize-1 more bytes
	// without needing a new sector.
	if err := h.Grow(freeMap, SectorSize-1); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if freeMap.NumClear() != before {
		t.Fatalf("Grow within the allocated tail consumed a sector: NumClear %d -> %d", before, freeMap.NumClear())
	}
	if h.FileLength() != SectorSize {
		t.Fatalf("FileLength = %d, want %d", h.FileLength(), SectorSize)
	}
}

func TestFileHeaderEncodeDecodeRoundTrip(t *testing.T) {
	freeMap := NewBitMap(64)
	h := &FileHeader{}
	if err := h.Allocate(freeMap, 4*SectorSize); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	h.SetType("txt")
	h.Stamp(1234)

	var got FileHeader
	got.decode(h.encode())
	if got.FileLength() != h.FileLength() {
		t.Fatalf("FileLength after round trip = %d, want %d", got.FileLength(), h.FileLength())
	}
	if got.Type() != "txt" {
		t.Fatalf("Type after round trip = %q, want %q", got.Type(), "txt")
	}
	if got.dataSectors != h.dataSectors {
		t.Fatal("dataSectors changed across encode/decode round trip")
	}
}
