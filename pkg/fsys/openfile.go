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
	"time"

	"github.com/gokernel/corekernel/pkg/ksync"
)

// OpenFileEntry is shared by every concurrently open handle on the
// same header sector: a reference count, a deferred-remove flag set by
// Remove when the file is still open, and the reader-writer lock that
// serializes this file's reads and writes.
type OpenFileEntry struct {
	sector  int
	path    string
	refcnt  int
	removed bool
	rw      *ksync.RWLock
}

// OpenFile is a single opener's handle: its own cached header and seek
// position, sharing the underlying entry with every other opener of
// the same file.
type OpenFile struct {
	fs             *FileSystem
	entry          *OpenFileEntry
	header         *FileHeader
	sectorPosition int
	seekPosition   int
}

// Seek repositions the next Read/Write.
func (f *OpenFile) Seek(position int) { f.seekPosition = position }

// Length returns the file's current byte length.
func (f *OpenFile) Length() int { return f.header.FileLength() }

// Type returns the file's type tag, derived from its name suffix at
// creation time.
func (f *OpenFile) Type() string { return f.header.Type() }

// CreatedAt and ModifiedAt expose this file's header timestamps, for
// cmd/kctl's stat mode.
func (f *OpenFile) CreatedAt() time.Time  { return f.header.CreatedAt() }
func (f *OpenFile) ModifiedAt() time.Time { return f.header.ModifiedAt() }

// HeaderSector returns the disk sector holding this file's header.
func (f *OpenFile) HeaderSector() int { return f.sectorPosition }

// NumSectors and SectorAt let a caller enumerate every data sector
// this file occupies (cmd/kctl's fsck mode), without exposing the
// header itself.
func (f *OpenFile) NumSectors() int                { return f.header.NumSectors() }
func (f *OpenFile) SectorAt(index int) (int, error) { return f.header.IndexToSector(index) }

// IndirectSectors returns the sector numbers of this file's
// first-level indirect blocks, which NumSectors/SectorAt do not
// themselves walk over.
func (f *OpenFile) IndirectSectors() []int { return f.header.IndirectSectors() }

// Read reads into buf starting at the current seek position, advancing
// it by the number of bytes actually read.
func (f *OpenFile) Read(buf []byte) (int, error) {
	f.entry.rw.ReaderIn()
	defer f.entry.rw.ReaderOut()
	n, err := f.ReadAt(buf, f.seekPosition)
	f.seekPosition += n
	return n, err
}

// Write writes buf starting at the current seek position, advancing it
// by the number of bytes actually written.
func (f *OpenFile) Write(buf []byte) (int, error) {
	f.entry.rw.WriterIn()
	defer f.entry.rw.WriterOut()
	n, err := f.WriteAt(buf, f.seekPosition)
	f.seekPosition += n
	return n, err
}

// ReadAt reads into buf starting at position, with no effect on the
// seek position and no locking of its own -- callers needing
// concurrency safety go through Read.
func (f *OpenFile) ReadAt(buf []byte, position int) (int, error) {
	fileLength := f.header.FileLength()
	numBytes := len(buf)
	if numBytes <= 0 || position >= fileLength {
		return 0, nil
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}
	firstSector := divRoundDown(position, SectorSize)
	lastSector := divRoundDown(position+numBytes-1, SectorSize)
	scratch := make([]byte, (lastSector-firstSector+1)*SectorSize)
	for i := firstSector; i <= lastSector; i++ {
		sector, err := f.header.ByteToSector(i * SectorSize)
		if err != nil {
			return 0, err
		}
		if err := f.fs.cache.ReadSector(sector, scratch[(i-firstSector)*SectorSize:]); err != nil {
			return 0, err
		}
	}
	copy(buf[:numBytes], scratch[position-firstSector*SectorSize:])
	return numBytes, nil
}

// WriteAt writes from buf starting at position, growing the file
// header (and truncating the write on growth failure) when the write
// extends past the current length. It does not lock -- callers needing
// concurrency safety go through Write.
func (f *OpenFile) WriteAt(buf []byte, position int) (int, error) {
	fileLength := f.header.FileLength()
	numBytes := len(buf)
	if position+numBytes > fileLength {
		freeMap, err := f.fs.loadFreeMap()
		if err != nil {
			return 0, err
		}
		if err := f.header.Grow(freeMap, position+numBytes-fileLength); err != nil {
			numBytes = fileLength - position
		} else {
			if err := f.fs.commitFreeMap(freeMap); err != nil {
				return 0, err
			}
			if err := f.header.WriteBack(f.fs.cache, f.sectorPosition); err != nil {
				return 0, err
			}
		}
	}
	if numBytes <= 0 {
		return 0, nil
	}

	firstSector := divRoundDown(position, SectorSize)
	lastSector := divRoundDown(position+numBytes-1, SectorSize)
	scratch := make([]byte, (lastSector-firstSector+1)*SectorSize)

	firstAligned := position == firstSector*SectorSize
	lastAligned := position+numBytes == (lastSector+1)*SectorSize

	if !firstAligned {
		if _, err := f.ReadAt(scratch[:SectorSize], firstSector*SectorSize); err != nil {
			return 0, err
		}
	}
	if !lastAligned && (firstSector != lastSector || firstAligned) {
		off := (lastSector - firstSector) * SectorSize
		if _, err := f.ReadAt(scratch[off:off+SectorSize], lastSector*SectorSize); err != nil {
			return 0, err
		}
	}

	copy(scratch[position-firstSector*SectorSize:], buf[:numBytes])

	for i := firstSector; i <= lastSector; i++ {
		sector, err := f.header.ByteToSector(i * SectorSize)
		if err != nil {
			return 0, err
		}
		if err := f.fs.cache.WriteSector(sector, scratch[(i-firstSector)*SectorSize:(i-firstSector+1)*SectorSize]); err != nil {
			return 0, err
		}
	}
	return numBytes, nil
}

// Close releases this handle. When the last handle on the underlying
// entry closes, the entry is dropped from the registry and, if Remove
// had deferred removal on it, the removal is carried out now.
func (f *OpenFile) Close() error {
	return f.fs.closeHandle(f)
}
