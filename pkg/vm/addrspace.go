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

// Executable is the read side of a user program's backing file: the
// source a page's initial content is demand-loaded from when its page
// table entry names a file offset. pkg/fsys.OpenFile satisfies this
// directly via its ReadAt.
type Executable interface {
	ReadAt(buf []byte, position int) (int, error)
}

// AddressSpace is one process's page table plus the executable it
// demand-loads from. ID is the weak key FrameMap and SwapMap's owner
// back-references use to find their way back here.
type AddressSpace struct {
	ID    int
	Pages []PageTableEntry
	Exe   Executable
}

// New builds an address space of numPages pages. exeOffset maps a
// virtual page number to its byte offset in exe, or -1 if the page has
// no executable backing and should be zero-filled on first fault (e.g.
// stack and heap pages). exe may be nil if no page uses it.
func New(id, numPages int, exe Executable, exeOffset func(vpn int) int) *AddressSpace {
	pages := make([]PageTableEntry, numPages)
	for vpn := range pages {
		off := -1
		if exeOffset != nil {
			off = exeOffset(vpn)
		}
		pages[vpn] = newPageTableEntry(off)
	}
	return &AddressSpace{ID: id, Pages: pages, Exe: exe}
}

// NumPages returns the address space's page count.
func (as *AddressSpace) NumPages() int { return len(as.Pages) }

// Clone returns a fresh address space with newID sharing as's
// executable and per-page file offsets, but owning none of as's
// resident frames or swap slots: every page starts invalid and is
// demand-paged in fresh on first fault, the same as a newly loaded
// address space. This backs the fork(fnAddr) syscall's "address space
// cloned from the current one" (spec.md §4.7): pages backed by the
// executable are cheaply re-derivable, but heap/stack content the
// parent wrote since exec is not carried over into the clone.
func (as *AddressSpace) Clone(newID int) *AddressSpace {
	pages := make([]PageTableEntry, len(as.Pages))
	for i, p := range as.Pages {
		pages[i] = newPageTableEntry(p.FileOffset)
	}
	return &AddressSpace{ID: newID, Pages: pages, Exe: as.Exe}
}
