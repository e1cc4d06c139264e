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

import (
	"fmt"
	"os"
)

// FileBackend stores sectors as a flat, densely-packed OS file, the
// closest analogue to the original's "DISK" file.
type FileBackend struct {
	f          *os.File
	numSectors int
	sectorSize int
}

// OpenFileBackend opens (or creates, zero-filled) path as a flat file
// holding numSectors sectors of sectorSize bytes each.
func OpenFileBackend(path string, numSectors, sectorSize int) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskstore: open %s: %w", path, err)
	}
	want := int64(numSectors) * int64(sectorSize)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, fmt.Errorf("diskstore: truncate %s: %w", path, err)
		}
	}
	return &FileBackend{f: f, numSectors: numSectors, sectorSize: sectorSize}, nil
}

func (b *FileBackend) ReadSector(sector int, data []byte) error {
	if _, err := b.f.ReadAt(data[:b.sectorSize], int64(sector)*int64(b.sectorSize)); err != nil {
		return fmt.Errorf("diskstore: read sector %d: %w", sector, err)
	}
	return nil
}

func (b *FileBackend) WriteSector(sector int, data []byte) error {
	if _, err := b.f.WriteAt(data[:b.sectorSize], int64(sector)*int64(b.sectorSize)); err != nil {
		return fmt.Errorf("diskstore: write sector %d: %w", sector, err)
	}
	return nil
}

func (b *FileBackend) NumSectors() int { return b.numSectors }
func (b *FileBackend) SectorSize() int { return b.sectorSize }
func (b *FileBackend) Close() error    { return b.f.Close() }
