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

import (
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/machine"
)

// FaultHandler services page faults and TLB misses, per spec.md §4.6: it
// owns no state of its own beyond the frame map, swap map, TLB, and the
// registry of live address spaces that lets it turn a frame's weak
// (AS id, vpn) back-reference into the real page table entry to update
// on eviction.
type FaultHandler struct {
	frames *FrameMap
	swap   *SwapMap
	mem    *machine.Memory
	tlb    *TLB
	spaces map[int]*AddressSpace

	faultCount int
}

// NewFaultHandler wires a fault handler over the given frame map, swap
// map, physical memory, and TLB.
func NewFaultHandler(frames *FrameMap, swap *SwapMap, mem *machine.Memory, tlb *TLB) *FaultHandler {
	return &FaultHandler{frames: frames, swap: swap, mem: mem, tlb: tlb, spaces: make(map[int]*AddressSpace)}
}

// Register makes as visible to eviction: any frame's owner that
// resolves to as.ID can find its page table back through here.
func (h *FaultHandler) Register(as *AddressSpace) { h.spaces[as.ID] = as }

// Unregister drops as from the registry, done once every frame and
// swap slot it owns has been released.
func (h *FaultHandler) Unregister(as *AddressSpace) { delete(h.spaces, as.ID) }

// Translate resolves vaddr within as to a physical address, faulting in
// the page and/or refilling the TLB as needed, and marking the page
// dirty if write is set. This is the single path pkg/exc's user-memory
// copy loops and the CPU's load/store path go through.
func (h *FaultHandler) Translate(as *AddressSpace, vaddr int, write bool) (int, error) {
	vpn := vaddr / PageSize
	offset := vaddr % PageSize
	if vpn < 0 || vpn >= len(as.Pages) {
		return 0, kerrors.ErrBadAddress
	}

	if _, ok := h.tlb.Lookup(vpn); !ok {
		if err := h.handleFault(as, vpn); err != nil {
			return 0, err
		}
	}

	pte := &as.Pages[vpn]
	pte.Use = true
	if write {
		pte.Dirty = true
		h.tlb.MarkDirty(vpn)
	}
	return pte.Frame*PageSize + offset, nil
}

// handleFault implements the "Page-fault handler" steps of spec.md
// §4.6: allocate (possibly by eviction), refill from the right source,
// mark valid, then refill the TLB entry.
func (h *FaultHandler) handleFault(as *AddressSpace, vpn int) error {
	pte := &as.Pages[vpn]
	if !pte.Valid {
		h.faultCount++
		if err := h.fillPage(as, vpn, pte); err != nil {
			return err
		}
	}
	h.tlb.Refill(vpn, pte.Frame)
	return nil
}

// FaultCount returns the number of page table misses serviced so far
// (TLB-only misses, where the page table entry was already valid, do
// not count).
func (h *FaultHandler) FaultCount() int { return h.faultCount }

func (h *FaultHandler) fillPage(as *AddressSpace, vpn int, pte *PageTableEntry) error {
	frame := h.frames.Alloc(as.ID, vpn)
	if frame == -1 {
		victim, ok := h.frames.Victim()
		if !ok {
			return kerrors.ErrNoFreeFrame
		}
		if err := h.evict(victim); err != nil {
			return err
		}
		frame = h.frames.Alloc(as.ID, vpn)
		if frame == -1 {
			return kerrors.ErrNoFreeFrame
		}
	}

	buf := make([]byte, PageSize)
	fromSwap := pte.SwapSlot >= 0
	switch {
	case fromSwap:
		if err := h.swap.ReadIn(pte.SwapSlot, buf); err != nil {
			return err
		}
		h.swap.Free(pte.SwapSlot)
		pte.SwapSlot = -1
	case pte.FileOffset >= 0 && as.Exe != nil:
		if _, err := as.Exe.ReadAt(buf, pte.FileOffset); err != nil {
			return err
		}
	default:
		// Zero-fill: buf is already all-zero.
	}

	h.mem.WritePage(frame, PageSize, buf)
	pte.Valid = true
	pte.Frame = frame
	// A page refilled from swap has no other durable copy once its old
	// slot is freed above; keep Dirty set so a later eviction writes it
	// out again even if nothing re-writes the page in between, instead
	// of mistaking "clean since fault-in" for "clean since ever".
	pte.Dirty = fromSwap
	pte.Use = false
	return nil
}

// evict swaps frame's owning page out if dirty, invalidates its page
// table entry and any TLB entry for it, then frees the frame.
func (h *FaultHandler) evict(frame int) error {
	owner := h.frames.Owner(frame)
	as, ok := h.spaces[owner.AS]
	if !ok {
		kerrors.FatalPanic("vm: frame %d claims owner address space %d, which is not registered", frame, owner.AS)
		return nil
	}
	pte := &as.Pages[owner.VPN]

	if pte.Dirty {
		slot := h.swap.Alloc()
		if slot == -1 {
			return kerrors.ErrNoSwapSlot
		}
		buf := make([]byte, PageSize)
		h.mem.ReadPage(frame, PageSize, buf)
		if err := h.swap.WriteOut(slot, buf); err != nil {
			return err
		}
		pte.SwapSlot = slot
	}

	pte.Valid = false
	pte.Dirty = false
	pte.Use = false
	h.tlb.Invalidate(owner.VPN)
	h.frames.Free(frame)
	return nil
}

// Suspend evicts every valid page of as (writing the dirty ones to
// swap first), releasing its frames for
// other work without tearing the address space itself down -- used for
// thread-level page eviction (spec.md §4.6 "Suspend").
func (h *FaultHandler) Suspend(as *AddressSpace) error {
	for vpn := range as.Pages {
		pte := &as.Pages[vpn]
		if !pte.Valid {
			continue
		}
		if pte.Dirty {
			slot := h.swap.Alloc()
			if slot == -1 {
				return kerrors.ErrNoSwapSlot
			}
			buf := make([]byte, PageSize)
			h.mem.ReadPage(pte.Frame, PageSize, buf)
			if err := h.swap.WriteOut(slot, buf); err != nil {
				return err
			}
			pte.SwapSlot = slot
		}
		h.frames.Free(pte.Frame)
		h.tlb.Invalidate(vpn)
		pte.Valid = false
		pte.Dirty = false
		pte.Use = false
	}
	return nil
}

// FreeAll releases every frame and swap slot as holds and drops it from
// the registry, per the exit(code) syscall contract of spec.md §4.7:
// no swap-out, the address space is going away entirely.
func (h *FaultHandler) FreeAll(as *AddressSpace) {
	for vpn := range as.Pages {
		pte := &as.Pages[vpn]
		if pte.Valid {
			h.frames.Free(pte.Frame)
			h.tlb.Invalidate(vpn)
			pte.Valid = false
		}
		if pte.SwapSlot >= 0 {
			h.swap.Free(pte.SwapSlot)
			pte.SwapSlot = -1
		}
	}
	h.Unregister(as)
}
