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

package fsys

import (
	"github.com/gokernel/corekernel/pkg/ksync"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

type cacheSlot struct {
	sector   int
	data     [SectorSize]byte
	valid    bool
	dirty    bool
	lastUsed uint64
}

// Cache is the synchronous, cached interface to the asynchronous
// pkg/machine.Disk: the equivalent of the original's SynchDisk, with a
// write-back LRU cache layered in front. One lock spans both the
// cache-slot decision and the blocking wait for disk completion, so an
// async completion can never race a new cache decision.
type Cache struct {
	disk *machine.Disk
	k    *thread.Kernel
	lock *ksync.Lock
	done *ksync.Semaphore

	slots []cacheSlot
}

// NewCache wraps disk with a numSlots-entry write-back cache.
func NewCache(k *thread.Kernel, disk *machine.Disk, numSlots int) *Cache {
	c := &Cache{
		disk:  disk,
		k:     k,
		lock:  ksync.NewLock(k, "fsys.cache"),
		done:  ksync.NewSemaphore(k, "fsys.cache.disk", 0),
		slots: make([]cacheSlot, numSlots),
	}
	disk.SetCompletionHandler(func() { c.done.V() })
	return c
}

func (c *Cache) findSlot(sector int) int {
	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].sector == sector {
			return i
		}
	}
	return -1
}

// expel picks a victim slot: the first invalid one, else the one with
// the oldest lastUsed tick, writing it back first if dirty.
func (c *Cache) expel() (int, error) {
	for i := range c.slots {
		if !c.slots[i].valid {
			return i, nil
		}
	}
	victim := 0
	for i := range c.slots {
		if c.slots[i].lastUsed < c.slots[victim].lastUsed {
			victim = i
		}
	}
	if c.slots[victim].dirty {
		if err := c.disk.WriteRequest(c.slots[victim].sector, c.slots[victim].data[:]); err != nil {
			return 0, err
		}
		c.done.P()
	}
	c.slots[victim].valid = false
	return victim, nil
}

// ReadSector copies sector's contents into data, filling the cache on
// a miss.
func (c *Cache) ReadSector(sector int, data []byte) error {
	c.lock.Acquire()
	defer c.lock.Release()

	if i := c.findSlot(sector); i != -1 {
		copy(data[:SectorSize], c.slots[i].data[:])
		c.slots[i].lastUsed = c.k.Interrupt.Ticks()
		return nil
	}
	i, err := c.expel()
	if err != nil {
		return err
	}
	if err := c.disk.ReadRequest(sector, c.slots[i].data[:]); err != nil {
		return err
	}
	c.done.P()
	c.slots[i].valid = true
	c.slots[i].dirty = false
	c.slots[i].sector = sector
	c.slots[i].lastUsed = c.k.Interrupt.Ticks()
	copy(data[:SectorSize], c.slots[i].data[:])
	return nil
}

// WriteSector overwrites sector with data: in place and marked dirty
// on a hit, write-through directly to disk on a miss.
func (c *Cache) WriteSector(sector int, data []byte) error {
	c.lock.Acquire()
	defer c.lock.Release()

	if i := c.findSlot(sector); i != -1 {
		copy(c.slots[i].data[:], data[:SectorSize])
		c.slots[i].dirty = true
		c.slots[i].lastUsed = c.k.Interrupt.Ticks()
		return nil
	}
	if err := c.disk.WriteRequest(sector, data[:SectorSize]); err != nil {
		return err
	}
	c.done.P()
	return nil
}

// Flush writes back every dirty valid slot, used at shutdown.
func (c *Cache) Flush() error {
	c.lock.Acquire()
	defer c.lock.Release()

	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].dirty {
			if err := c.disk.WriteRequest(c.slots[i].sector, c.slots[i].data[:]); err != nil {
				return err
			}
			c.done.P()
			c.slots[i].dirty = false
		}
	}
	return nil
}
