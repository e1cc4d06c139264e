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
	"bytes"
	"testing"
)

// TestCacheWriteMissIsWriteThrough covers a WriteSector on a sector
// that isn't cached: it goes straight to disk rather than allocating a
// slot, so a later ReadSector of the same sector still sees it.
func TestCacheWriteMissIsWriteThrough(t *testing.T) {
	withCache(t, 16, func(cache *Cache) {
		want := bytes.Repeat([]byte{0xAB}, SectorSize)
		if err := cache.WriteSector(3, want); err != nil {
			t.Fatalf("WriteSector: %v", err)
		}
		if cache.findSlot(3) != -1 {
			t.Fatal("WriteSector on a miss should not populate a cache slot")
		}
		got := make([]byte, SectorSize)
		if err := cache.ReadSector(3, got); err != nil {
			t.Fatalf("ReadSector: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatal("ReadSector after a write-through WriteSector did not return the written data")
		}
	})
}

// TestCacheEvictionWritesBackDirtySlot covers spec's cache-coherence
// invariant: a dirty cached slot evicted to make room for a new sector
// must persist its data to disk first, not drop it.
func TestCacheEvictionWritesBackDirtySlot(t *testing.T) {
	withCache(t, 16, func(cache *Cache) {
		scratch := make([]byte, SectorSize)
		if err := cache.ReadSector(0, scratch); err != nil {
			t.Fatalf("ReadSector(0): %v", err)
		}
		want := bytes.Repeat([]byte{0x5A}, SectorSize)
		if err := cache.WriteSector(0, want); err != nil {
			t.Fatalf("WriteSector(0): %v", err)
		}

		// Read enough additional distinct sectors to fill every
		// remaining slot and then force one more eviction.
		numSlots := len(cache.slots)
		for s := 1; s <= numSlots; s++ {
			buf := make([]byte, SectorSize)
			if err := cache.ReadSector(s, buf); err != nil {
				t.Fatalf("ReadSector(%d): %v", s, err)
			}
		}

		if cache.findSlot(0) != -1 {
			t.Fatal("sector 0 is still cached; this test's eviction setup didn't evict it")
		}

		got := make([]byte, SectorSize)
		if err := cache.ReadSector(0, got); err != nil {
			t.Fatalf("ReadSector(0) after eviction: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatal("evicting a dirty slot lost its data instead of writing it back")
		}
	})
}

// TestCacheFlushPersistsAllDirtySlots covers spec's cache-coherence
// invariant directly: after Flush, a fresh cache over the same disk
// reads back exactly what was last written.
func TestCacheFlushPersistsAllDirtySlots(t *testing.T) {
	withCache(t, 16, func(cache *Cache) {
		scratch := make([]byte, SectorSize)
		for s := 0; s < 4; s++ {
			if err := cache.ReadSector(s, scratch); err != nil {
				t.Fatalf("ReadSector(%d): %v", s, err)
			}
		}

		payloads := make(map[int][]byte)
		for s := 0; s < 4; s++ {
			buf := bytes.Repeat([]byte{byte(10 + s)}, SectorSize)
			payloads[s] = buf
			if err := cache.WriteSector(s, buf); err != nil {
				t.Fatalf("WriteSector(%d): %v", s, err)
			}
		}
		if err := cache.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}

		fresh := NewCache(cache.k, cache.disk, 4)
		for s, want := range payloads {
			got := make([]byte, SectorSize)
			if err := fresh.ReadSector(s, got); err != nil {
				t.Fatalf("ReadSector(%d) on fresh cache: %v", s, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("sector %d after Flush = % x, want % x", s, got, want)
			}
		}
	})
}
