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

// Package config loads the kernel's boot-time configuration: disk
// geometry, frame/TLB sizing, scheduler policy, and debug categories.
// It is the JSON-config counterpart to cmd/corekernel's command-line
// flags -- a config file sets defaults a flag can still override.
package config

import (
	"fmt"

	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/jsonconfig"
	"github.com/gokernel/corekernel/pkg/thread"
	"github.com/gokernel/corekernel/pkg/vm"
)

// Kernel is every tunable the kernel's subsystems need at boot: disk
// and file-system geometry, the virtual-memory stack's sizing, and the
// scheduling policy.
type Kernel struct {
	DiskPath   string
	NumSectors int
	CacheSlots int

	NumFrames int
	TLBSize   int
	TLBPolicy vm.ReplacementPolicy

	SchedPolicy string
	Quantum     uint64
	MaxThreads  int

	Debug string
}

// Default returns the configuration cmd/corekernel boots with when no
// config file is given.
func Default() Kernel {
	return Kernel{
		DiskPath:    "disk.img",
		NumSectors:  fsys.DefaultNumSectors,
		CacheSlots:  16,
		NumFrames:   32,
		TLBSize:     4,
		TLBPolicy:   vm.LRU,
		SchedPolicy: "round-robin",
		Quantum:     100,
		MaxThreads:  128,
		Debug:       "",
	}
}

// Load overlays obj onto Default, reporting every malformed or unknown
// key at once via jsonconfig.Obj's accumulating-error accessors.
func Load(obj jsonconfig.Obj) (Kernel, error) {
	k := Default()
	k.DiskPath = obj.OptionalString("diskPath", k.DiskPath)
	k.NumSectors = obj.OptionalInt("numSectors", k.NumSectors)
	k.CacheSlots = obj.OptionalInt("cacheSlots", k.CacheSlots)
	k.NumFrames = obj.OptionalInt("numFrames", k.NumFrames)
	k.TLBSize = obj.OptionalInt("tlbSize", k.TLBSize)
	if tp := obj.OptionalString("tlbPolicy", tlbPolicyName(k.TLBPolicy)); tp != "" {
		policy, err := parseTLBPolicy(tp)
		if err != nil {
			return k, err
		}
		k.TLBPolicy = policy
	}
	k.SchedPolicy = obj.OptionalString("schedPolicy", k.SchedPolicy)
	k.Quantum = uint64(obj.OptionalInt("quantum", int(k.Quantum)))
	k.MaxThreads = obj.OptionalInt("maxThreads", k.MaxThreads)
	k.Debug = obj.OptionalString("debug", k.Debug)
	return k, obj.Validate()
}

func tlbPolicyName(p vm.ReplacementPolicy) string {
	if p == vm.FIFO {
		return "fifo"
	}
	return "lru"
}

func parseTLBPolicy(name string) (vm.ReplacementPolicy, error) {
	switch name {
	case "lru":
		return vm.LRU, nil
	case "fifo":
		return vm.FIFO, nil
	default:
		return vm.LRU, fmt.Errorf("config: unknown tlbPolicy %q (want lru or fifo)", name)
	}
}

// SchedulerPolicy builds the thread.Policy k.SchedPolicy names.
func (k Kernel) SchedulerPolicy() (thread.Policy, error) {
	switch k.SchedPolicy {
	case "fifo":
		return thread.NewFIFOPolicy(), nil
	case "priority":
		return thread.NewPriorityPolicy(), nil
	case "round-robin", "roundrobin":
		return thread.NewRoundRobinPolicy(), nil
	default:
		return nil, fmt.Errorf("config: unknown schedPolicy %q (want fifo, priority, or round-robin)", k.SchedPolicy)
	}
}
