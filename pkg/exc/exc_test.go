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

package exc

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/klog"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
	"github.com/gokernel/corekernel/pkg/vm"
)

const (
	testNumSectors = 256
	testNumFrames  = 8
	testTLBSize    = 4
)

// buildStack wires a kernel-independent machine/fs/vm stack: a formatted
// in-memory disk, physical memory, frame/swap/TLB, and the fault
// handler, matching what cmd/corekernel assembles at startup. fsys.New
// still has to run on the kernel's current thread, so the FileSystem
// itself is built inside withDispatcher's boot closure.
func buildStack(k *thread.Kernel) (*machine.Disk, *machine.Memory, *vm.FaultHandler, *machine.Console) {
	disk := machine.NewDisk(diskstore.NewMemBackend(testNumSectors, fsys.SectorSize))
	mem := machine.NewMemory(testNumFrames * vm.PageSize)
	tlb := vm.NewTLB(testTLBSize, vm.LRU, k.Interrupt.Ticks)
	frames := vm.NewFrameMap(testNumFrames)
	swap := vm.NewSwapMap(diskstore.NewMemBackend(testNumSectors, vm.PageSize))
	fault := vm.NewFaultHandler(frames, swap, mem, tlb)
	console := machine.NewConsole(k, strings.NewReader(""), &bytes.Buffer{})
	return disk, mem, fault, console
}

// withDispatcher boots a single kernel thread over a freshly formatted
// in-memory file system and virtual-memory stack, and runs fn on that
// thread's goroutine with a ready Dispatcher. Every Dispatch call a
// test makes must happen from inside fn: the synchronization
// primitives underneath key state off the kernel's current thread.
//
// fn must return control normally (no syscall under test may be one
// that finishes the calling thread, such as exit or a killed bad
// pointer) -- tests that exercise those build their own kernel instead,
// since this harness's done channel would otherwise never close.
func withDispatcher(t *testing.T, fn func(k *thread.Kernel, d *Dispatcher)) {
	t.Helper()
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	disk, mem, fault, console := buildStack(k)
	log := klog.Default()

	done := make(chan struct{})
	var fsErr error

	k.Boot("main", thread.MinPriority, func(any) {
		defer close(done)
		fs, err := fsys.New(k, disk, 4, testNumSectors, true)
		if err != nil {
			fsErr = err
			return
		}
		d := New(k, fs, fault, mem, console, log)
		fn(k, d)
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher test did not complete")
	}
	if fsErr != nil {
		t.Fatalf("fsys.New: %v", fsErr)
	}
}

// writeUserCString writes s, NUL-terminated, into as starting at vaddr,
// faulting pages in as needed -- standing in for a user program that
// already has the bytes sitting in its own memory.
func writeUserCString(t *testing.T, d *Dispatcher, as *vm.AddressSpace, vaddr int32, s string) {
	t.Helper()
	if err := d.writeUserBytes(as, vaddr, append([]byte(s), 0)); err != nil {
		t.Fatalf("writeUserCString(%q): %v", s, err)
	}
}

func newTestAddressSpace(d *Dispatcher, numPages int) *vm.AddressSpace {
	as := vm.New(d.allocASID(), numPages, nil, nil)
	d.fault.Register(as)
	return as
}

func TestDispatchCreateOpenWriteReadClose(t *testing.T) {
	withDispatcher(t, func(k *thread.Kernel, d *Dispatcher) {
		self := k.Current()
		as := newTestAddressSpace(d, 4)
		self.Space = as
		self.HasUser = true

		writeUserCString(t, d, as, 0, "/hello")

		regs := self.UserState[:]
		regs[machine.RegSyscallType] = SCCreate
		regs[machine.RegArg1] = 0
		d.Dispatch(self, machine.SyscallException)
		if regs[machine.RegSyscallType] != 0 {
			t.Fatalf("create: want 0, got %d", regs[machine.RegSyscallType])
		}

		regs[machine.RegSyscallType] = SCOpen
		regs[machine.RegArg1] = 0
		d.Dispatch(self, machine.SyscallException)
		fd := regs[machine.RegSyscallType]
		if fd != 2 {
			t.Fatalf("open: want fd 2, got %d", fd)
		}

		if err := d.writeUserBytes(as, 64, []byte("hello")); err != nil {
			t.Fatalf("seed payload: %v", err)
		}

		regs[machine.RegSyscallType] = SCWrite
		regs[machine.RegArg1] = 64
		regs[machine.RegArg2] = 5
		regs[machine.RegArg3] = fd
		d.Dispatch(self, machine.SyscallException)
		if n := regs[machine.RegSyscallType]; n != 5 {
			t.Fatalf("write: want 5, got %d", n)
		}

		regs[machine.RegSyscallType] = SCClose
		regs[machine.RegArg1] = fd
		d.Dispatch(self, machine.SyscallException)
		if regs[machine.RegSyscallType] != 0 {
			t.Fatalf("close: want 0, got %d", regs[machine.RegSyscallType])
		}

		regs[machine.RegSyscallType] = SCOpen
		regs[machine.RegArg1] = 0
		d.Dispatch(self, machine.SyscallException)
		fd2 := regs[machine.RegSyscallType]
		if fd2 != 2 {
			t.Fatalf("reopen: want fd 2 reused, got %d", fd2)
		}

		regs[machine.RegSyscallType] = SCRead
		regs[machine.RegArg1] = vm.PageSize // second page, offset 0
		regs[machine.RegArg2] = 5
		regs[machine.RegArg3] = fd2
		d.Dispatch(self, machine.SyscallException)
		if n := regs[machine.RegSyscallType]; n != 5 {
			t.Fatalf("read: want 5, got %d", n)
		}

		got, err := d.readUserBytes(as, vm.PageSize, 5)
		if err != nil {
			t.Fatalf("readUserBytes: %v", err)
		}
		if string(got) != "hello" {
			t.Fatalf("read back %q, want %q", got, "hello")
		}
	})
}

func TestDispatchExecForkJoin(t *testing.T) {
	withDispatcher(t, func(k *thread.Kernel, d *Dispatcher) {
		var childRan []int

		d.UserEntry = func(ct *thread.TCB) {
			childRan = append(childRan, ct.ID())
			d.doExit(ct)
		}

		if err := WriteExecutable(d.fs, "/prog", []byte{0, 0, 0, 0}, nil, 0, 1); err != nil {
			t.Fatalf("WriteExecutable: %v", err)
		}

		self := k.Current()
		self.Space = newTestAddressSpace(d, 2)
		self.HasUser = true
		writeUserCString(t, d, self.Space.(*vm.AddressSpace), 0, "/prog")

		regs := self.UserState[:]
		regs[machine.RegSyscallType] = SCExec
		regs[machine.RegArg1] = 0
		d.Dispatch(self, machine.SyscallException)
		childTID := regs[machine.RegSyscallType]
		if childTID < 0 || int(childTID) == self.ID() {
			t.Fatalf("exec: bad child tid %d", childTID)
		}

		regs[machine.RegSyscallType] = SCJoin
		regs[machine.RegArg1] = childTID
		d.Dispatch(self, machine.SyscallException)
		if regs[machine.RegSyscallType] != 0 {
			t.Fatalf("join: want 0, got %d", regs[machine.RegSyscallType])
		}

		if len(childRan) != 1 || childRan[0] != int(childTID) {
			t.Fatalf("expected exactly the execed child to run once, got %v", childRan)
		}
		if _, ok := k.Find(int(childTID)); ok {
			t.Fatalf("child %d still live after join", childTID)
		}
	})
}

func TestDispatchForkSyscallClonesAddressSpace(t *testing.T) {
	withDispatcher(t, func(k *thread.Kernel, d *Dispatcher) {
		var gotPC, gotNextPC int32
		var gotSpace *vm.AddressSpace

		self := k.Current()
		parentAS := newTestAddressSpace(d, 3)
		self.Space = parentAS
		self.HasUser = true

		const fnAddr = int32(64)
		d.UserEntry = func(ct *thread.TCB) {
			gotPC = ct.UserState[machine.RegPC]
			gotNextPC = ct.UserState[machine.RegNextPC]
			gotSpace, _ = ct.Space.(*vm.AddressSpace)
			d.doExit(ct)
		}

		regs := self.UserState[:]
		regs[machine.RegSyscallType] = SCFork
		regs[machine.RegArg1] = fnAddr
		d.Dispatch(self, machine.SyscallException)
		childTID := regs[machine.RegSyscallType]
		if childTID == int32(self.ID()) {
			t.Fatalf("fork: child tid collided with parent")
		}

		regs[machine.RegSyscallType] = SCJoin
		regs[machine.RegArg1] = childTID
		d.Dispatch(self, machine.SyscallException)

		if gotPC != fnAddr || gotNextPC != fnAddr+machine.InstrSize {
			t.Fatalf("child entry registers = (%d,%d), want (%d,%d)", gotPC, gotNextPC, fnAddr, fnAddr+machine.InstrSize)
		}
		if gotSpace == nil || gotSpace.ID == parentAS.ID {
			t.Fatalf("forked thread did not get a distinct cloned address space")
		}
		if gotSpace.NumPages() != parentAS.NumPages() {
			t.Fatalf("cloned address space has %d pages, want %d", gotSpace.NumPages(), parentAS.NumPages())
		}
	})
}

// TestDispatchBadUserPointerKillsOnlyThatThread exercises spec.md §7's
// "bad pointer is fatal to the one thread only": the offending thread's
// Dispatch call never returns (Finish parks it forever), but a
// concurrently forked observer thread still gets scheduled and runs to
// completion, proving the kernel as a whole survived.
func TestDispatchBadUserPointerKillsOnlyThatThread(t *testing.T) {
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	disk, mem, fault, console := buildStack(k)
	log := klog.Default()

	observed := make(chan struct{})
	var fsErr error

	k.Boot("main", thread.MinPriority, func(any) {
		fs, err := fsys.New(k, disk, 4, testNumSectors, true)
		if err != nil {
			fsErr = err
			close(observed)
			return
		}
		d := New(k, fs, fault, mem, console, log)

		k.Fork("observer", thread.MinPriority, func(any) {
			close(observed)
		}, nil)

		self := k.Current()
		as := newTestAddressSpace(d, 1)
		self.Space = as
		self.HasUser = true

		regs := self.UserState[:]
		regs[machine.RegSyscallType] = SCCreate
		regs[machine.RegArg1] = int32(as.NumPages()*vm.PageSize + 10000) // well out of range

		d.Dispatch(self, machine.SyscallException) // kills self; never returns
	}, nil)

	select {
	case <-observed:
	case <-time.After(2 * time.Second):
		t.Fatal("observer thread never ran after the bad-pointer thread was killed")
	}
	if fsErr != nil {
		t.Fatalf("fsys.New: %v", fsErr)
	}
}

func TestDispatchHaltDoesNotAdvancePC(t *testing.T) {
	withDispatcher(t, func(k *thread.Kernel, d *Dispatcher) {
		self := k.Current()
		as := newTestAddressSpace(d, 1)
		self.Space = as
		self.HasUser = true

		regs := self.UserState[:]
		regs[machine.RegSyscallType] = SCHalt
		regs[machine.RegPC] = 4
		regs[machine.RegNextPC] = 8
		d.Dispatch(self, machine.SyscallException)

		k.Wait() // returns immediately: Halt already signaled it
		if regs[machine.RegPC] != 4 || regs[machine.RegNextPC] != 8 {
			t.Fatalf("halt must not advance the PC, got pc=%d nextPC=%d", regs[machine.RegPC], regs[machine.RegNextPC])
		}
	})
}
