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

package machine

// Memory is the simulated flat physical address space: what pkg/vm
// pages frames into and pkg/exc's user-buffer copy loops read and write
// through a translated address.
type Memory struct {
	bytes []byte
}

// NewMemory allocates a zeroed physical address space of numBytes
// bytes.
func NewMemory(numBytes int) *Memory {
	return &Memory{bytes: make([]byte, numBytes)}
}

// Size returns the physical address space's size in bytes.
func (m *Memory) Size() int { return len(m.bytes) }

// ReadPage copies the pageSize bytes of physical frame number frame
// into buf.
func (m *Memory) ReadPage(frame, pageSize int, buf []byte) {
	copy(buf[:pageSize], m.bytes[frame*pageSize:(frame+1)*pageSize])
}

// WritePage overwrites physical frame number frame with the pageSize
// bytes of buf.
func (m *Memory) WritePage(frame, pageSize int, buf []byte) {
	copy(m.bytes[frame*pageSize:(frame+1)*pageSize], buf[:pageSize])
}

// ReadByte reads one byte at a physical address.
func (m *Memory) ReadByte(addr int) byte { return m.bytes[addr] }

// WriteByte writes one byte at a physical address.
func (m *Memory) WriteByte(addr int, b byte) { m.bytes[addr] = b }
