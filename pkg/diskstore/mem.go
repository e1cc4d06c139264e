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

package diskstore

// MemBackend is an in-memory Backend, used by the fsys test suite so
// file-system invariants can be exercised without touching the real
// filesystem.
type MemBackend struct {
	sectors    [][]byte
	sectorSize int
}

// NewMemBackend allocates a zeroed in-memory disk of numSectors sectors.
func NewMemBackend(numSectors, sectorSize int) *MemBackend {
	b := &MemBackend{sectors: make([][]byte, numSectors), sectorSize: sectorSize}
	for i := range b.sectors {
		b.sectors[i] = make([]byte, sectorSize)
	}
	return b
}

func (b *MemBackend) ReadSector(sector int, data []byte) error {
	copy(data[:b.sectorSize], b.sectors[sector])
	return nil
}

func (b *MemBackend) WriteSector(sector int, data []byte) error {
	copy(b.sectors[sector], data[:b.sectorSize])
	return nil
}

func (b *MemBackend) NumSectors() int { return len(b.sectors) }
func (b *MemBackend) SectorSize() int { return b.sectorSize }
func (b *MemBackend) Close() error    { return nil }
