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

package ksync

import (
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/thread"
)

// Lock wraps a binary semaphore with owner tracking, so Release can
// assert the releaser actually holds it.
type Lock struct {
	name  string
	k     *thread.Kernel
	sem   *Semaphore
	owner *thread.TCB
}

// NewLock creates an unheld lock.
func NewLock(k *thread.Kernel, name string) *Lock {
	return &Lock{name: name, k: k, sem: NewSemaphore(k, name, 1)}
}

// Acquire blocks until the lock is free, then takes it.
func (l *Lock) Acquire() {
	old := l.k.Interrupt.Disable()
	l.sem.P()
	l.owner = l.k.Current()
	l.k.Interrupt.Restore(old)
}

// Release gives up the lock. It is fatal for a thread that does not
// hold the lock to release it.
func (l *Lock) Release() {
	old := l.k.Interrupt.Disable()
	if !l.IsHeldByCurrentThread() {
		kerrors.FatalPanic("ksync: lock %q released by non-owner", l.name)
	}
	l.owner = nil
	l.sem.V()
	l.k.Interrupt.Restore(old)
}

// IsHeldByCurrentThread reports whether the calling thread owns the
// lock. Must be called with interrupts disabled.
func (l *Lock) IsHeldByCurrentThread() bool {
	return l.owner == l.k.Current()
}
