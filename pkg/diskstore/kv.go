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

	"modernc.org/kv"
)

// KVBackend is an alternative ordered on-disk backend for the same
// interface FileBackend and LevelDBBackend satisfy, demonstrating the
// Backend abstraction is pluggable the way the teacher's sorted.KeyValue
// has multiple interchangeable implementations.
type KVBackend struct {
	db         *kv.DB
	numSectors int
	sectorSize int
}

// OpenKVBackend opens (creating if absent) a modernc.org/kv database at
// path to back numSectors sectors of sectorSize bytes.
func OpenKVBackend(path string, numSectors, sectorSize int) (*KVBackend, error) {
	opts := &kv.Options{}
	db, err := kv.Open(path, opts)
	if err != nil {
		if !os.IsNotExist(err) {
			// Could also be a freshly named path with no file yet;
			// fall through to Create either way and surface whichever
			// error sticks.
		}
		db, err = kv.Create(path, opts)
		if err != nil {
			return nil, fmt.Errorf("diskstore: open/create kv %s: %w", path, err)
		}
	}
	return &KVBackend{db: db, numSectors: numSectors, sectorSize: sectorSize}, nil
}

func (b *KVBackend) ReadSector(sector int, data []byte) error {
	v, err := b.db.Get(nil, sectorKey(sector))
	if err != nil {
		return fmt.Errorf("diskstore: kv read sector %d: %w", sector, err)
	}
	if v == nil {
		clear(data[:b.sectorSize])
		return nil
	}
	copy(data[:b.sectorSize], v)
	return nil
}

func (b *KVBackend) WriteSector(sector int, data []byte) error {
	if err := b.db.Set(sectorKey(sector), data[:b.sectorSize]); err != nil {
		return fmt.Errorf("diskstore: kv write sector %d: %w", sector, err)
	}
	return nil
}

func (b *KVBackend) NumSectors() int { return b.numSectors }
func (b *KVBackend) SectorSize() int { return b.sectorSize }
func (b *KVBackend) Close() error    { return b.db.Close() }
