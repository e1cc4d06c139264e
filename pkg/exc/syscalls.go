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
	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

// Syscall codes. original_source/userprog/exception.cc dispatches on
// these by name (SC_Halt, SC_Exit, ...) but its syscall.h was not part
// of the retrieved source, so the numeric values here are this
// package's own assignment, in spec.md §6's listing order.
const (
	SCHalt = iota
	SCExit
	SCExec
	SCJoin
	SCCreate
	SCOpen
	SCClose
	SCRead
	SCWrite
	SCFork
	SCYield
)

// maxOpenFiles bounds a thread's per-thread small-integer file
// descriptor table; fds 0 and 1 are already reserved for the console.
const maxOpenFiles = 16

// doExit frees every frame the thread's address space holds, then
// finishes the thread. Per spec.md §4.7 this never returns control to
// the syscall-return path: dispatchSyscall must not write a return
// register or advance the PC afterwards.
func (d *Dispatcher) doExit(t *thread.TCB) {
	if as := d.addressSpaceOf(t); as != nil {
		d.fault.FreeAll(as)
	}
	d.log.Printf(logCategory, "thread %d (%s) exited", t.ID(), t.Name())
	d.k.Finish()
}

func (d *Dispatcher) doJoin(tid int32) (int32, error) {
	d.k.Join(int(tid))
	return 0, nil
}

func (d *Dispatcher) doYield() (int32, error) {
	d.k.Yield()
	return 0, nil
}

func (d *Dispatcher) doCreate(t *thread.TCB, nameAddr int32) (int32, error) {
	as := d.requireSpace(t)
	name, err := d.readUserString(as, nameAddr)
	if err != nil {
		return -1, err
	}
	if err := d.fs.Create(name, 0, false); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) doOpen(t *thread.TCB, nameAddr int32) (int32, error) {
	as := d.requireSpace(t)
	name, err := d.readUserString(as, nameAddr)
	if err != nil {
		return -1, err
	}
	of, err := d.fs.Open(name)
	if err != nil {
		return -1, err
	}
	fd := allocFD(t)
	if fd == -1 {
		of.Close()
		return -1, kerrors.ErrTooManyOpen
	}
	t.OpenFiles[fd] = of
	return int32(fd), nil
}

func (d *Dispatcher) doClose(t *thread.TCB, fdArg int32) (int32, error) {
	fd := int(fdArg)
	if fd == 0 || fd == 1 {
		return 0, nil
	}
	of, ok := t.OpenFiles[fd].(*fsys.OpenFile)
	if !ok {
		return -1, kerrors.ErrBadFD
	}
	delete(t.OpenFiles, fd)
	if err := of.Close(); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) doRead(t *thread.TCB, bufAddr, size, fdArg int32) (int32, error) {
	as := d.requireSpace(t)
	n := int(size)
	if n <= 0 {
		return 0, nil
	}
	fd := int(fdArg)

	var data []byte
	if fd == 0 {
		data = make([]byte, n)
		for i := range data {
			ch, err := d.console.GetChar()
			if err != nil {
				return -1, err
			}
			data[i] = ch
		}
	} else {
		of, ok := t.OpenFiles[fd].(*fsys.OpenFile)
		if !ok {
			return -1, kerrors.ErrBadFD
		}
		buf := make([]byte, n)
		got, err := of.Read(buf)
		if err != nil {
			return -1, err
		}
		data = buf[:got]
	}
	if err := d.writeUserBytes(as, bufAddr, data); err != nil {
		return -1, err
	}
	return int32(len(data)), nil
}

func (d *Dispatcher) doWrite(t *thread.TCB, bufAddr, size, fdArg int32) (int32, error) {
	as := d.requireSpace(t)
	n := int(size)
	if n <= 0 {
		return 0, nil
	}
	buf, err := d.readUserBytes(as, bufAddr, n)
	if err != nil {
		return -1, err
	}
	fd := int(fdArg)
	if fd == 1 {
		for _, b := range buf {
			if err := d.console.PutChar(b); err != nil {
				return -1, err
			}
		}
		return int32(n), nil
	}
	of, ok := t.OpenFiles[fd].(*fsys.OpenFile)
	if !ok {
		return -1, kerrors.ErrBadFD
	}
	wrote, err := of.Write(buf)
	if err != nil {
		return -1, err
	}
	return int32(wrote), nil
}

func (d *Dispatcher) doExec(t *thread.TCB, pathAddr int32) (int32, error) {
	as := d.requireSpace(t)
	path, err := d.readUserString(as, pathAddr)
	if err != nil {
		return -1, err
	}
	return d.spawn(path)
}

func (d *Dispatcher) doFork(t *thread.TCB, fnAddr int32) (int32, error) {
	as := d.requireSpace(t)
	child := as.Clone(d.allocASID())
	d.fault.Register(child)

	tcb := d.k.Fork(t.Name()+":fork", t.Priority(), func(any) {
		self := d.k.Current()
		self.Space = child
		self.HasUser = true
		self.UserState[machine.RegPC] = fnAddr
		self.UserState[machine.RegNextPC] = fnAddr + machine.InstrSize
		if d.UserEntry != nil {
			d.UserEntry(self)
		}
	}, nil)
	return int32(tcb.ID()), nil
}

func allocFD(t *thread.TCB) int {
	for fd := 2; fd < maxOpenFiles; fd++ {
		if _, used := t.OpenFiles[fd]; !used {
			return fd
		}
	}
	return -1
}
