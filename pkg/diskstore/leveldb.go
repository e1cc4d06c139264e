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
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBBackend stores each sector as a value under its big-endian
// sector number key in a goleveldb database, so a formatted disk image
// survives process restarts without being one giant flat file.
type LevelDBBackend struct {
	db         *leveldb.DB
	numSectors int
	sectorSize int
}

// OpenLevelDBBackend opens (creating if absent) a goleveldb database at
// path to back numSectors sectors of sectorSize bytes.
func OpenLevelDBBackend(path string, numSectors, sectorSize int) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Filter: filter.NewBloomFilter(10)})
	if err != nil {
		return nil, fmt.Errorf("diskstore: open leveldb %s: %w", path, err)
	}
	return &LevelDBBackend{db: db, numSectors: numSectors, sectorSize: sectorSize}, nil
}

func sectorKey(sector int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(sector))
	return k[:]
}

func (b *LevelDBBackend) ReadSector(sector int, data []byte) error {
	v, err := b.db.Get(sectorKey(sector), nil)
	if err == leveldb.ErrNotFound {
		clear(data[:b.sectorSize])
		return nil
	}
	if err != nil {
		return fmt.Errorf("diskstore: leveldb read sector %d: %w", sector, err)
	}
	copy(data[:b.sectorSize], v)
	return nil
}

func (b *LevelDBBackend) WriteSector(sector int, data []byte) error {
	if err := b.db.Put(sectorKey(sector), data[:b.sectorSize], nil); err != nil {
		return fmt.Errorf("diskstore: leveldb write sector %d: %w", sector, err)
	}
	return nil
}

func (b *LevelDBBackend) NumSectors() int { return b.numSectors }
func (b *LevelDBBackend) SectorSize() int { return b.sectorSize }
func (b *LevelDBBackend) Close() error    { return b.db.Close() }
