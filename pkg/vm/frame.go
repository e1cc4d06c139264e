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

// FrameOwner is the weak reverse-lookup a frame needs for eviction: the
// owning address space and the virtual page currently mapped there. The
// address space itself holds the owning (forward) reference to the
// frame through its page table entry.
type FrameOwner struct {
	AS  int
	VPN int
}

// FrameMap is the physical-frame bitmap: which frames are in use, and
// (for the ones that are) who owns them.
type FrameMap struct {
	used   []bool
	owners []FrameOwner
}

// NewFrameMap allocates an all-free map over numFrames physical frames.
func NewFrameMap(numFrames int) *FrameMap {
	return &FrameMap{used: make([]bool, numFrames), owners: make([]FrameOwner, numFrames)}
}

// NumFrames returns the total frame count.
func (m *FrameMap) NumFrames() int { return len(m.used) }

// Alloc claims a free frame for (as, vpn) and returns its index, or -1
// if every frame is in use.
func (m *FrameMap) Alloc(as, vpn int) int {
	for i, used := range m.used {
		if !used {
			m.used[i] = true
			m.owners[i] = FrameOwner{AS: as, VPN: vpn}
			return i
		}
	}
	return -1
}

// Free releases frame back to the pool.
func (m *FrameMap) Free(frame int) {
	m.used[frame] = false
	m.owners[frame] = FrameOwner{}
}

// Owner reports the (address space, virtual page) that currently owns
// frame; only meaningful while frame is in use.
func (m *FrameMap) Owner(frame int) FrameOwner { return m.owners[frame] }

// NumFree counts free frames.
func (m *FrameMap) NumFree() int {
	n := 0
	for _, used := range m.used {
		if !used {
			n++
		}
	}
	return n
}

// Victim picks a frame to evict when the map is full: spec.md leaves
// the frame-eviction policy open ("choose a valid resident page"),
// unlike the TLB's prescribed LRU/FIFO choice, so this always picks the
// lowest-indexed resident frame -- simple, deterministic, and easy to
// reason about in tests. It reports false if no frame is in use at all
// (the map has nothing to evict, a distinct condition from "full").
func (m *FrameMap) Victim() (int, bool) {
	for i, used := range m.used {
		if used {
			return i, true
		}
	}
	return 0, false
}
