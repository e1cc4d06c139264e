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

import "github.com/gokernel/corekernel/pkg/thread"

// Barrier holds a fixed number of threads until all of them have
// arrived, then releases all of them at once. It is built entirely
// out of Lock and Cond, the way the rest of this package expects
// higher primitives to be layered on Semaphore.
type Barrier struct {
	lock    *Lock
	cond    *Cond
	parties int
	waiting int
	gen     int
}

// NewBarrier creates a barrier for the given number of parties.
func NewBarrier(k *thread.Kernel, parties int) *Barrier {
	return &Barrier{
		lock:    NewLock(k, "barrier"),
		cond:    NewCond(k),
		parties: parties,
	}
}

// Wait blocks until "parties" threads have called Wait, then releases
// them all together.
func (b *Barrier) Wait() {
	b.lock.Acquire()
	defer b.lock.Release()

	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast(b.lock)
		return
	}
	for gen == b.gen {
		b.cond.Wait(b.lock)
	}
}
