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

package config

import (
	"testing"

	"github.com/gokernel/corekernel/pkg/jsonconfig"
	"github.com/gokernel/corekernel/pkg/vm"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	k, err := Load(jsonconfig.Obj{
		"numFrames":   float64(64),
		"tlbPolicy":   "fifo",
		"schedPolicy": "priority",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k.NumFrames != 64 {
		t.Fatalf("NumFrames = %d, want 64", k.NumFrames)
	}
	if k.TLBPolicy != vm.FIFO {
		t.Fatalf("TLBPolicy = %v, want FIFO", k.TLBPolicy)
	}
	if k.SchedPolicy != "priority" {
		t.Fatalf("SchedPolicy = %q, want priority", k.SchedPolicy)
	}
	// Untouched fields keep their default.
	if k.CacheSlots != Default().CacheSlots {
		t.Fatalf("CacheSlots = %d, want default %d", k.CacheSlots, Default().CacheSlots)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(jsonconfig.Obj{"bogus": "x"})
	if err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
}

func TestLoadRejectsBadTLBPolicy(t *testing.T) {
	_, err := Load(jsonconfig.Obj{"tlbPolicy": "clock"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized tlbPolicy")
	}
}

func TestSchedulerPolicyBuildsEachKnownPolicy(t *testing.T) {
	for _, name := range []string{"fifo", "priority", "round-robin"} {
		k := Default()
		k.SchedPolicy = name
		if _, err := k.SchedulerPolicy(); err != nil {
			t.Fatalf("SchedulerPolicy(%q): %v", name, err)
		}
	}
}

func TestSchedulerPolicyRejectsUnknown(t *testing.T) {
	k := Default()
	k.SchedPolicy = "lottery"
	if _, err := k.SchedulerPolicy(); err == nil {
		t.Fatal("expected an error for an unknown scheduler policy")
	}
}
