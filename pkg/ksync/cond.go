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

// Cond is a Mesa-semantics condition variable: it carries no lock of
// its own. Wait atomically releases the caller-supplied lock and
// reacquires it before returning; Signal and Broadcast require the
// caller to already hold that lock. Waiters must re-check their
// predicate in a loop, since a woken waiter is only guaranteed the
// condition held at some point after the signal, not at the moment it
// resumes.
type Cond struct {
	k     *thread.Kernel
	queue []*thread.TCB
}

// NewCond creates an empty condition variable.
func NewCond(k *thread.Kernel) *Cond {
	return &Cond{k: k}
}

// Wait releases lock, blocks until Signal or Broadcast wakes this
// thread, then reacquires lock before returning.
func (c *Cond) Wait(lock *Lock) {
	old := c.k.Interrupt.Disable()
	if !lock.IsHeldByCurrentThread() {
		kerrors.FatalPanic("ksync: Cond.Wait called without holding the condition's lock")
	}
	c.queue = append(c.queue, c.k.Current())
	lock.Release()
	c.k.Sleep()
	lock.Acquire()
	c.k.Interrupt.Restore(old)
}

// Signal wakes the longest-waiting thread, if any.
func (c *Cond) Signal(lock *Lock) {
	old := c.k.Interrupt.Disable()
	if !lock.IsHeldByCurrentThread() {
		kerrors.FatalPanic("ksync: Cond.Signal called without holding the condition's lock")
	}
	if len(c.queue) > 0 {
		t := c.queue[0]
		c.queue = c.queue[1:]
		c.k.ReadyToRun(t)
	}
	c.k.Interrupt.Restore(old)
}

// Broadcast wakes every waiting thread.
func (c *Cond) Broadcast(lock *Lock) {
	old := c.k.Interrupt.Disable()
	if !lock.IsHeldByCurrentThread() {
		kerrors.FatalPanic("ksync: Cond.Broadcast called without holding the condition's lock")
	}
	for _, t := range c.queue {
		c.k.ReadyToRun(t)
	}
	c.queue = nil
	c.k.Interrupt.Restore(old)
}
