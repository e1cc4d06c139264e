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

// Message is a fixed-capacity payload delivered through a Mailbox.
type Message struct {
	From    int
	Payload []byte
}

// Mailbox is the kernel's message-passing facility: a per-recipient
// FIFO queue plus a registry lookup by TID, so Send can fail cleanly
// when the destination thread does not exist.
type Mailbox struct {
	k     *thread.Kernel
	lock  *Lock
	boxes map[int][]Message
}

// NewMailbox creates an empty mailbox system bound to k's live-thread
// registry.
func NewMailbox(k *thread.Kernel) *Mailbox {
	return &Mailbox{
		k:     k,
		lock:  NewLock(k, "mailbox"),
		boxes: make(map[int][]Message),
	}
}

// Send enqueues a copy of payload onto destTID's queue, tagged with
// the sending thread's TID. It returns false without modifying
// anything if destTID does not name a live thread.
func (m *Mailbox) Send(destTID int, payload []byte) bool {
	m.lock.Acquire()
	defer m.lock.Release()

	if _, ok := m.k.Find(destTID); !ok {
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.boxes[destTID] = append(m.boxes[destTID], Message{From: m.k.Current().ID(), Payload: cp})
	return true
}

// Receive returns the next message addressed to the calling thread
// from srcTID, or from any sender if srcTID is negative. It returns
// false immediately if no matching message is queued; it never
// blocks, matching the original's non-waiting Receive.
func (m *Mailbox) Receive(srcTID int) (Message, bool) {
	m.lock.Acquire()
	defer m.lock.Release()

	self := m.k.Current().ID()
	queue := m.boxes[self]
	for i, msg := range queue {
		if srcTID < 0 || msg.From == srcTID {
			m.boxes[self] = append(queue[:i], queue[i+1:]...)
			return msg, true
		}
	}
	return Message{}, false
}
