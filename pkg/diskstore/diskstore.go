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

// Package diskstore abstracts the byte store backing the simulated
// disk's sectors. The sector cache in pkg/fsys talks to a Backend
// instead of a flat OS file directly, the way the teacher's pkg/sorted
// lets a KeyValue store be swapped without touching its callers.
package diskstore

import "fmt"

// Backend stores and retrieves fixed-size sectors by number. All
// sectors are exactly SectorSize() bytes; callers never pass a
// differently sized slice.
type Backend interface {
	ReadSector(sector int, data []byte) error
	WriteSector(sector int, data []byte) error
	NumSectors() int
	SectorSize() int
	Close() error
}

// Open parses a -disk flag value of the form "path" (flat file,
// default) or "backend:path" and returns the corresponding Backend,
// formatting a new zeroed image of numSectors sectors if none exists
// yet at path.
func Open(spec string, numSectors, sectorSize int) (Backend, error) {
	backend, path := splitSpec(spec)
	switch backend {
	case "", "file":
		return OpenFileBackend(path, numSectors, sectorSize)
	case "leveldb":
		return OpenLevelDBBackend(path, numSectors, sectorSize)
	case "kv":
		return OpenKVBackend(path, numSectors, sectorSize)
	default:
		return nil, fmt.Errorf("diskstore: unknown backend %q", backend)
	}
}

func splitSpec(spec string) (backend, path string) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:]
		}
	}
	return "", spec
}
