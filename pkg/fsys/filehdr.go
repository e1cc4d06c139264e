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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gokernel/corekernel/pkg/kerrors"
)

// headerFixedSize is every FileHeader field except dataSectors: two
// int32s, an 8-byte type tag, three int64 Unix timestamps.
const headerFixedSize = 4 + 4 + 8 + 8 + 8 + 8

func init() {
	if headerFixedSize+(NumFirstIndex+NumSecondIndex)*4 != SectorSize {
		panic("fsys: FileHeader does not pack into exactly one sector")
	}
}

// FileHeader locates a file's data on disk: a direct pointer array
// followed by a first-level-indirect pointer array, each indirect
// pointer addressing a sector holding IndexPerSector further direct
// pointers. It is the in-memory mirror of one on-disk sector.
type FileHeader struct {
	numBytes    int32
	numSectors  int32
	fileType    [8]byte
	timeCreate  int64
	timeAccess  int64
	timeModify  int64
	dataSectors [NumFirstIndex + NumSecondIndex]int32

	cache *Cache
}

// Allocate initializes a fresh header for a newly created file of
// fileSize bytes, consuming sectors from freeMap. It returns
// kerrors.ErrNoFreeSector without mutating freeMap's already-committed
// state beyond the sectors it itself claimed -- callers that fail must
// discard the freeMap copy they passed in, never WriteBack it.
func (h *FileHeader) Allocate(freeMap *BitMap, fileSize int) error {
	numSectors := divRoundUp(fileSize, SectorSize)
	if numSectors > MaxFileSectors {
		return kerrors.ErrHeaderTooLarge
	}
	indirectOverhead := divRoundUp(max(0, numSectors-NumFirstIndex), IndexPerSector)
	if freeMap.NumClear() < numSectors+indirectOverhead {
		return kerrors.ErrNoFreeSector
	}
	h.numBytes = int32(fileSize)
	h.numSectors = 0
	remaining := numSectors

	for i := 0; i < NumFirstIndex && remaining > 0; i++ {
		h.dataSectors[i] = int32(freeMap.Find())
		remaining--
		h.numSectors++
	}
	for i := 0; remaining > 0; i++ {
		if i >= NumSecondIndex {
			return kerrors.ErrHeaderTooLarge
		}
		indirectSector := freeMap.Find()
		h.dataSectors[NumFirstIndex+i] = int32(indirectSector)
		var index [IndexPerSector]int32
		for j := 0; j < IndexPerSector && remaining > 0; j++ {
			index[j] = int32(freeMap.Find())
			remaining--
			h.numSectors++
		}
		if err := writeIndirect(h.cache, indirectSector, index[:]); err != nil {
			return err
		}
	}
	return nil
}

// Grow extends the file by delta bytes, allocating only the sectors it
// needs beyond the already-allocated tail sector, preferring direct
// slots before indirect ones. On failure the header is left unchanged
// and kerrors.ErrNoFreeSector (or kerrors.ErrHeaderTooLarge, when the
// file would need more than MaxFileSectors sectors) is returned.
func (h *FileHeader) Grow(freeMap *BitMap, delta int) error {
	maxLength := int(h.numSectors) * SectorSize
	if delta+int(h.numBytes) <= maxLength {
		h.numBytes += int32(delta)
		return nil
	}
	increase := divRoundUp(delta+int(h.numBytes)-maxLength, SectorSize)
	finalSectors := int(h.numSectors) + increase
	if finalSectors > MaxFileSectors {
		return kerrors.ErrHeaderTooLarge
	}
	newIndirect := divRoundUp(max(0, finalSectors-NumFirstIndex), IndexPerSector) -
		divRoundUp(max(0, int(h.numSectors)-NumFirstIndex), IndexPerSector)
	if freeMap.NumClear() < increase+newIndirect {
		return kerrors.ErrNoFreeSector
	}
	for increase > 0 && int(h.numSectors) < NumFirstIndex {
		h.dataSectors[h.numSectors] = int32(freeMap.Find())
		h.numSectors++
		increase--
	}
	for increase > 0 {
		local := int(h.numSectors) - NumFirstIndex
		slot := local / IndexPerSector
		if NumFirstIndex+slot >= NumFirstIndex+NumSecondIndex {
			return kerrors.ErrHeaderTooLarge
		}
		var (
			indirectSector int
			index          []int32
		)
		if local%IndexPerSector == 0 {
			// First sector of this indirect block: it has no
			// on-disk indirect sector yet, unlike the original's
			// Grow, which assumed one already existed and read
			// through whatever happened to be in
			// dataSectors[NumFirstIndex+slot].
			indirectSector = freeMap.Find()
			if indirectSector == -1 {
				return kerrors.ErrNoFreeSector
			}
			h.dataSectors[NumFirstIndex+slot] = int32(indirectSector)
			index = make([]int32, IndexPerSector)
		} else {
			indirectSector = int(h.dataSectors[NumFirstIndex+slot])
			var err error
			index, err = readIndirect(h.cache, indirectSector)
			if err != nil {
				return err
			}
		}
		index[local%IndexPerSector] = int32(freeMap.Find())
		if err := writeIndirect(h.cache, indirectSector, index); err != nil {
			return err
		}
		h.numSectors++
		increase--
	}
	h.numBytes += int32(delta)
	return nil
}

// Deallocate releases every data and indirect sector this header
// addresses back into freeMap.
func (h *FileHeader) Deallocate(freeMap *BitMap) {
	remaining := int(h.numSectors)
	for i := 0; i < NumFirstIndex && remaining > 0; i++ {
		freeMap.Clear(int(h.dataSectors[i]))
		remaining--
	}
	for i := 0; remaining > 0; i++ {
		indirectSector := int(h.dataSectors[NumFirstIndex+i])
		index, err := readIndirect(h.cache, indirectSector)
		if err != nil {
			return
		}
		for j := 0; j < IndexPerSector && remaining > 0; j++ {
			freeMap.Clear(int(index[j]))
			remaining--
		}
		freeMap.Clear(indirectSector)
	}
}

// IndexToSector translates a 0-based sector index within the file to
// its absolute disk sector number, fetching the indirect sector if
// index falls beyond the direct range.
func (h *FileHeader) IndexToSector(index int) (int, error) {
	if index < NumFirstIndex {
		return int(h.dataSectors[index]), nil
	}
	slot := NumFirstIndex + (index-NumFirstIndex)/IndexPerSector
	indirect, err := readIndirect(h.cache, int(h.dataSectors[slot]))
	if err != nil {
		return 0, err
	}
	return int(indirect[(index-NumFirstIndex)%IndexPerSector]), nil
}

// ByteToSector translates a byte offset within the file to its
// absolute disk sector number.
func (h *FileHeader) ByteToSector(offset int) (int, error) {
	return h.IndexToSector(offset / SectorSize)
}

// FileLength returns the file's byte length.
func (h *FileHeader) FileLength() int { return int(h.numBytes) }

// NumSectors returns how many data sectors this header currently
// addresses, for offline inspection tools (cmd/kctl's stat and fsck
// modes) that need to enumerate a file's sectors via IndexToSector
// without reaching into the header's private fields.
func (h *FileHeader) NumSectors() int { return int(h.numSectors) }

// IndirectSectors returns the sector numbers of this header's
// first-level indirect blocks. Every data sector IndexToSector
// addresses is already covered by iterating 0..NumSectors, but the
// indirect blocks holding those pointers are sectors in their own
// right that a free-map audit also needs to account for.
func (h *FileHeader) IndirectSectors() []int {
	overhead := divRoundUp(max(0, int(h.numSectors)-NumFirstIndex), IndexPerSector)
	out := make([]int, overhead)
	for i := 0; i < overhead; i++ {
		out[i] = int(h.dataSectors[NumFirstIndex+i])
	}
	return out
}

// CreatedAt, AccessedAt, and ModifiedAt return the three timestamps
// Stamp records, the same fields the original's FileHeader::Print
// reports alongside a file's size and block list.
func (h *FileHeader) CreatedAt() time.Time  { return time.Unix(h.timeCreate, 0) }
func (h *FileHeader) AccessedAt() time.Time { return time.Unix(h.timeAccess, 0) }
func (h *FileHeader) ModifiedAt() time.Time { return time.Unix(h.timeModify, 0) }

// FetchFrom reads the header from sector via cache.
func (h *FileHeader) FetchFrom(cache *Cache, sector int) error {
	buf := make([]byte, SectorSize)
	if err := cache.ReadSector(sector, buf); err != nil {
		return err
	}
	h.decode(buf)
	h.cache = cache
	return nil
}

// WriteBack writes the header to sector via cache.
func (h *FileHeader) WriteBack(cache *Cache, sector int) error {
	h.cache = cache
	return cache.WriteSector(sector, h.encode())
}

func (h *FileHeader) encode() []byte {
	buf := make([]byte, SectorSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.numBytes))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.numSectors))
	copy(buf[8:16], h.fileType[:])
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.timeCreate))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.timeAccess))
	binary.BigEndian.PutUint64(buf[32:40], uint64(h.timeModify))
	for i, s := range h.dataSectors {
		off := headerFixedSize + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(s))
	}
	return buf
}

func (h *FileHeader) decode(buf []byte) {
	h.numBytes = int32(binary.BigEndian.Uint32(buf[0:4]))
	h.numSectors = int32(binary.BigEndian.Uint32(buf[4:8]))
	copy(h.fileType[:], buf[8:16])
	h.timeCreate = int64(binary.BigEndian.Uint64(buf[16:24]))
	h.timeAccess = int64(binary.BigEndian.Uint64(buf[24:32]))
	h.timeModify = int64(binary.BigEndian.Uint64(buf[32:40]))
	for i := range h.dataSectors {
		off := headerFixedSize + i*4
		h.dataSectors[i] = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	}
}

// SetType records the file's type tag (derived from its name suffix).
func (h *FileHeader) SetType(t string) {
	var b [8]byte
	copy(b[:], t)
	h.fileType = b
}

// Type returns the file's type tag with trailing NULs trimmed.
func (h *FileHeader) Type() string {
	n := 0
	for n < len(h.fileType) && h.fileType[n] != 0 {
		n++
	}
	return string(h.fileType[:n])
}

// Stamp records t (a Unix timestamp) into all three timestamp fields,
// used when a header is first created.
func (h *FileHeader) Stamp(t int64) {
	h.timeCreate, h.timeAccess, h.timeModify = t, t, t
}

func readIndirect(cache *Cache, sector int) ([]int32, error) {
	if cache == nil {
		return nil, fmt.Errorf("fsys: header has no bound cache")
	}
	buf := make([]byte, SectorSize)
	if err := cache.ReadSector(sector, buf); err != nil {
		return nil, err
	}
	out := make([]int32, IndexPerSector)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out, nil
}

func writeIndirect(cache *Cache, sector int, index []int32) error {
	if cache == nil {
		return fmt.Errorf("fsys: header has no bound cache")
	}
	buf := make([]byte, SectorSize)
	for i, v := range index {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
	return cache.WriteSector(sector, buf)
}
