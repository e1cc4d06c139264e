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
	"errors"

	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/klog"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
	"github.com/gokernel/corekernel/pkg/vm"
)

// logCategory is the klog.Category this package logs under.
const logCategory = klog.Exc

// maxUserString bounds the length of a NUL-terminated user string
// Exec/Create/Open will copy in, one byte at a time, before giving up.
const maxUserString = 1024

// Dispatcher is the single entry point coupling the thread kernel,
// file system, and virtual memory to user code (spec.md §4.7). It owns
// no state a CPU run loop wouldn't hand it already: which thread
// trapped, why, and that thread's register file.
type Dispatcher struct {
	k       *thread.Kernel
	fs      *fsys.FileSystem
	fault   *vm.FaultHandler
	mem     *machine.Memory
	console *machine.Console
	log     *klog.Logger

	nextASID int

	// UserEntry, if set, is invoked on a freshly exec'd or forked
	// thread's goroutine right after its address space and initial
	// registers are installed, standing in for "enters user mode" --
	// the external CPU run loop spec.md §2 scopes out of this core.
	// Tests supply it to drive a synthetic instruction stream through
	// repeated Dispatch calls; cmd/corekernel leaves it nil. Left nil,
	// a newly spawned thread simply finishes immediately after setup,
	// which is a well-defined (if inert) default.
	UserEntry func(t *thread.TCB)
}

// New wires a Dispatcher over the given kernel, file system, and
// virtual memory subsystems.
func New(k *thread.Kernel, fs *fsys.FileSystem, fault *vm.FaultHandler, mem *machine.Memory, console *machine.Console, log *klog.Logger) *Dispatcher {
	return &Dispatcher{k: k, fs: fs, fault: fault, mem: mem, console: console, log: log}
}

func (d *Dispatcher) allocASID() int {
	id := d.nextASID
	d.nextASID++
	return id
}

// Dispatch services one trap from the machine simulator boundary: t is
// the thread that trapped, already holding its register snapshot in
// t.UserState, and which identifies why.
func (d *Dispatcher) Dispatch(t *thread.TCB, which machine.ExceptionType) {
	switch which {
	case machine.SyscallException:
		d.dispatchSyscall(t)
	case machine.PageFaultException:
		d.dispatchPageFault(t)
	default:
		kerrors.FatalPanic("exc: unexpected exception on thread %d: %s", t.ID(), which)
	}
}

func (d *Dispatcher) dispatchSyscall(t *thread.TCB) {
	regs := t.UserState[:]
	code := regs[machine.RegSyscallType]
	arg1, arg2, arg3 := regs[machine.RegArg1], regs[machine.RegArg2], regs[machine.RegArg3]

	d.log.Printf(logCategory, "thread %d (%s): syscall %d(%d,%d,%d)", t.ID(), t.Name(), code, arg1, arg2, arg3)

	switch code {
	case SCHalt:
		d.k.Halt()
		return
	case SCExit:
		d.doExit(t)
		return
	}

	var (
		ret int32
		err error
	)
	switch code {
	case SCExec:
		ret, err = d.doExec(t, arg1)
	case SCJoin:
		ret, err = d.doJoin(arg1)
	case SCFork:
		ret, err = d.doFork(t, arg1)
	case SCYield:
		ret, err = d.doYield()
	case SCCreate:
		ret, err = d.doCreate(t, arg1)
	case SCOpen:
		ret, err = d.doOpen(t, arg1)
	case SCClose:
		ret, err = d.doClose(t, arg1)
	case SCRead:
		ret, err = d.doRead(t, arg1, arg2, arg3)
	case SCWrite:
		ret, err = d.doWrite(t, arg1, arg2, arg3)
	default:
		kerrors.FatalPanic("exc: unknown syscall code %d on thread %d", code, t.ID())
	}

	if errors.Is(err, kerrors.ErrBadAddress) {
		d.killUser(t, err)
		return
	}
	regs[machine.RegSyscallType] = ret
	machine.AdvancePC(regs)
}

func (d *Dispatcher) dispatchPageFault(t *thread.TCB) {
	as := d.requireSpace(t)
	vaddr := int(t.UserState[machine.RegBadVAddr])
	if _, err := d.fault.Translate(as, vaddr, false); err != nil {
		if errors.Is(err, kerrors.ErrBadAddress) {
			d.killUser(t, err)
			return
		}
		// Frame/swap exhaustion is a system-wide resource failure, not
		// an attributable user error: spec.md §7 only carves out bad
		// pointers as fatal-to-the-one-thread.
		kerrors.FatalPanic("exc: thread %d: page fault unserviceable: %v", t.ID(), err)
	}
	// PC is intentionally left untouched: the faulting instruction is
	// re-executed once the page is resident.
}

// killUser implements spec.md §7's "bad pointer ... raises addressing
// exception -> fatal for that user thread only, which is finished":
// the thread's address space is torn down and it is finished, but no
// other thread or kernel state is affected.
func (d *Dispatcher) killUser(t *thread.TCB, reason error) {
	d.log.Printf(logCategory, "thread %d (%s): %v; terminating", t.ID(), t.Name(), reason)
	if as := d.addressSpaceOf(t); as != nil {
		d.fault.FreeAll(as)
	}
	d.k.Finish()
}

func (d *Dispatcher) addressSpaceOf(t *thread.TCB) *vm.AddressSpace {
	as, _ := t.Space.(*vm.AddressSpace)
	return as
}

func (d *Dispatcher) requireSpace(t *thread.TCB) *vm.AddressSpace {
	as := d.addressSpaceOf(t)
	if as == nil {
		kerrors.FatalPanic("exc: thread %d has no address space", t.ID())
	}
	return as
}

// Exec loads path as the kernel's very first user process: the
// equivalent of the original's system.cc calling StartProcess directly
// for the "-x file" command line, before any syscall trap exists to ask
// for it. Thereafter, a running program's own exec syscall reaches the
// same loading logic through dispatchSyscall.
func (d *Dispatcher) Exec(path string) (int32, error) {
	return d.spawn(path)
}

func (d *Dispatcher) spawn(path string) (int32, error) {
	exe, hdr, err := LoadExecutable(d.fs, path)
	if err != nil {
		return -1, err
	}
	as := NewAddressSpace(d.allocASID(), exe, hdr)
	d.fault.Register(as)

	tcb := d.k.Fork(path, thread.MinPriority, func(any) {
		self := d.k.Current()
		self.Space = as
		self.HasUser = true
		self.UserState[machine.RegNextPC] = machine.InstrSize
		if d.UserEntry != nil {
			d.UserEntry(self)
		}
	}, nil)
	return int32(tcb.ID()), nil
}

func (d *Dispatcher) readUserByte(as *vm.AddressSpace, vaddr int32) (byte, error) {
	phys, err := d.fault.Translate(as, int(vaddr), false)
	if err != nil {
		return 0, err
	}
	return d.mem.ReadByte(phys), nil
}

func (d *Dispatcher) writeUserByte(as *vm.AddressSpace, vaddr int32, b byte) error {
	phys, err := d.fault.Translate(as, int(vaddr), true)
	if err != nil {
		return err
	}
	d.mem.WriteByte(phys, b)
	return nil
}

// readUserString copies a NUL-terminated string out of user memory one
// byte at a time through the translation path, per spec.md §4.7's
// "translate user buffers a byte at a time via the MMU".
func (d *Dispatcher) readUserString(as *vm.AddressSpace, vaddr int32) (string, error) {
	buf := make([]byte, 0, 32)
	for i := 0; i < maxUserString; i++ {
		b, err := d.readUserByte(as, vaddr+int32(i))
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", kerrors.ErrBadAddress
}

func (d *Dispatcher) readUserBytes(as *vm.AddressSpace, vaddr int32, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := d.readUserByte(as, vaddr+int32(i))
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

func (d *Dispatcher) writeUserBytes(as *vm.AddressSpace, vaddr int32, buf []byte) error {
	for i, b := range buf {
		if err := d.writeUserByte(as, vaddr+int32(i), b); err != nil {
			return err
		}
	}
	return nil
}
