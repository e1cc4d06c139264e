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

package vm

import "github.com/gokernel/corekernel/pkg/diskstore"

// SwapMap tracks allocation of page-sized slots in a dedicated swap
// backing store. It reuses pkg/diskstore.Backend directly rather than
// pkg/machine.Disk: swapping is always invoked synchronously from
// inside the fault handler, which already runs under the kernel's
// single-thread-of-control invariant, so there is no asynchronous
// completion to model here the way pkg/fsys.Cache models one for the
// file system's disk.
type SwapMap struct {
	store diskstore.Backend
	used  []bool
}

// NewSwapMap wraps store (whose SectorSize must equal PageSize) as a
// swap area of store.NumSectors() page-sized slots.
func NewSwapMap(store diskstore.Backend) *SwapMap {
	return &SwapMap{store: store, used: make([]bool, store.NumSectors())}
}

// NumSlots returns the total slot count.
func (s *SwapMap) NumSlots() int { return len(s.used) }

// Alloc claims a free slot and returns its index, or -1 if the swap
// area is full.
func (s *SwapMap) Alloc() int {
	for i, used := range s.used {
		if !used {
			s.used[i] = true
			return i
		}
	}
	return -1
}

// Free releases slot back to the pool.
func (s *SwapMap) Free(slot int) { s.used[slot] = false }

// WriteOut persists page to slot.
func (s *SwapMap) WriteOut(slot int, page []byte) error {
	return s.store.WriteSector(slot, page)
}

// ReadIn loads slot's contents into page.
func (s *SwapMap) ReadIn(slot int, page []byte) error {
	return s.store.ReadSector(slot, page)
}
