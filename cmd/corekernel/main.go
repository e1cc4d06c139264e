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

// Corekernel boots the thread/VM/file-system/exception stack this
// module implements and either runs a loadable user program (-x),
// runs one of the named demonstration workloads (-workload), or just
// formats a disk and exits (-f alone). See SPEC_FULL.md §8 for the
// CLI contract this flag set implements.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"go4.org/legal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gokernel/corekernel/pkg/config"
	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/exc"
	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/jsonconfig"
	"github.com/gokernel/corekernel/pkg/klog"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/osutil"
	"github.com/gokernel/corekernel/pkg/thread"
	"github.com/gokernel/corekernel/pkg/vm"
)

// tickInterval paces the free-running simulated clock; -s substitutes
// an Enter keypress for this interval instead.
const tickInterval = 20 * time.Millisecond

// maxConcurrentWorkloads bounds how many "-workload all" scenarios
// bootAndRun at once. Each scenario boots a fully independent kernel
// instance with its own goroutines and disk backend; without a limit,
// "all" would open every scenario's disk at once for no benefit.
const maxConcurrentWorkloads = 3

var (
	flagFormat   = flag.Bool("f", false, "format the disk before use")
	flagDisk     = flag.String("disk", "", "disk image path, or backend:path (file, leveldb, kv); default from config or disk.img")
	flagDebug    = flag.String("d", "", "comma-separated debug categories (thread,sync,fs,vm,exc,machine,all)")
	flagExec     = flag.String("x", "", "load and run the user program at this path on the formatted disk")
	flagStep     = flag.Bool("s", false, "single-step: wait for Enter between simulated clock ticks")
	flagWorkload = flag.String("workload", "", "run a named demonstration scenario instead of -x, or \"all\" to run every scenario concurrently on independent kernels")
	flagMonitor  = flag.String("monitor", "", "serve a live status websocket at this address, e.g. :8080")
	flagConfig   = flag.String("config", "", "JSON configuration file (see pkg/config)")
	flagLegal    = flag.Bool("legal", false, "show third-party license notices")
)

func main() {
	flag.Parse()
	if *flagLegal {
		for _, text := range legal.Licenses() {
			fmt.Println(text)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("corekernel: %v", err)
	}

	exitCode := run(cfg)
	os.Exit(exitCode)
}

// loadConfig resolves -config, falling back to the per-user config
// file osutil.DefaultConfigPath names when -config is not given and
// that file happens to exist; its absence there is normal, not an
// error, unlike an explicitly named file that fails to read.
func loadConfig() (config.Kernel, error) {
	cfg := config.Default()

	configPath := *flagConfig
	explicit := configPath != ""
	if !explicit {
		configPath = osutil.DefaultConfigPath()
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}
	if configPath != "" {
		obj, err := jsonconfig.ReadFile(configPath)
		if err != nil {
			if explicit {
				return cfg, fmt.Errorf("reading %s: %w", configPath, err)
			}
		} else if cfg, err = config.Load(obj); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if *flagDisk != "" {
		cfg.DiskPath = *flagDisk
	} else if cfg.DiskPath == config.Default().DiskPath {
		cfg.DiskPath = osutil.DefaultDiskImagePath()
	}
	if *flagDebug != "" {
		cfg.Debug = *flagDebug
	}
	return cfg, nil
}

// run wires the kernel's subsystems together, boots the initial
// thread, and blocks until the kernel halts. It returns the process
// exit code: zero on a clean halt, non-zero if setup or the requested
// program/workload failed. A kerrors.FatalPanic raised on this
// goroutine (during setup, before the kernel's own threads take over)
// is recovered here and reported as a halt with a diagnostic. Kernel
// threads run on goroutines of their own; a FatalPanic raised on one of
// them is not recovered and ends the process with Go's panic report.
func run(cfg config.Kernel) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("corekernel: fatal: %v", r)
			exitCode = 1
		}
	}()

	if *flagWorkload == "all" {
		if err := runAllWorkloads(cfg); err != nil {
			log.Printf("corekernel: %v", err)
			return 1
		}
		return 0
	}

	monitor := *flagMonitor
	step := *flagStep
	body := func(k *thread.Kernel, fs *fsys.FileSystem, fault *vm.FaultHandler, mem *machine.Memory, d *exc.Dispatcher, logger *klog.Logger, cfg config.Kernel) error {
		switch {
		case *flagWorkload != "":
			env := &workloadEnv{k: k, fs: fs, fault: fault, mem: mem, numFrames: cfg.NumFrames, log: logger}
			return runWorkload(env, *flagWorkload)
		case *flagExec != "":
			tid, err := d.Exec(*flagExec)
			if err != nil {
				return fmt.Errorf("exec %s: %w", *flagExec, err)
			}
			k.Join(int(tid))
		}
		return nil
	}

	if err := bootAndRun(cfg, cfg.DiskPath, monitor, step, body); err != nil {
		log.Printf("corekernel: %v", err)
		return 1
	}
	return 0
}

// bootAndRun assembles one complete kernel instance -- disk, swap
// store, thread kernel, VM stack, file system, and exception dispatcher
// -- over diskPath, boots it, runs body on the boot thread, and blocks
// until that kernel halts. Each call is fully self-contained: nothing
// it creates is shared with another concurrent call, which is what lets
// runAllWorkloads run several of these at once from ordinary goroutines
// without the resulting kernels ever touching each other's state.
func bootAndRun(cfg config.Kernel, diskPath, monitorAddr string, step bool, body func(k *thread.Kernel, fs *fsys.FileSystem, fault *vm.FaultHandler, mem *machine.Memory, d *exc.Dispatcher, logger *klog.Logger, cfg config.Kernel) error) error {
	diskBackend, err := diskstore.Open(diskPath, cfg.NumSectors, fsys.SectorSize)
	if err != nil {
		return fmt.Errorf("opening disk: %w", err)
	}
	defer diskBackend.Close()

	swapBackend, err := diskstore.Open(diskPath+".swap", cfg.NumSectors, vm.PageSize)
	if err != nil {
		return fmt.Errorf("opening swap store: %w", err)
	}
	defer swapBackend.Close()

	policy, err := cfg.SchedulerPolicy()
	if err != nil {
		return err
	}

	logger := klog.Default()
	if cfg.Debug != "" {
		logger.ParseFlag(cfg.Debug)
	}

	k := thread.NewKernel(policy, cfg.Quantum, cfg.MaxThreads)
	disk := machine.NewDisk(diskBackend)
	mem := machine.NewMemory(cfg.NumFrames * vm.PageSize)
	tlb := vm.NewTLB(cfg.TLBSize, cfg.TLBPolicy, k.Interrupt.Ticks)
	frames := vm.NewFrameMap(cfg.NumFrames)
	swap := vm.NewSwapMap(swapBackend)
	fault := vm.NewFaultHandler(frames, swap, mem, tlb)
	console := machine.NewConsole(k, os.Stdin, os.Stdout)

	var events chan thread.Event
	if monitorAddr != "" {
		events = make(chan thread.Event, 64)
		k.Events = events
		go serveMonitor(monitorAddr, events)
	}

	var runErr error
	k.Boot("main", thread.MinPriority, func(any) {
		fs, err := fsys.New(k, disk, cfg.CacheSlots, cfg.NumSectors, *flagFormat)
		if err != nil {
			runErr = fmt.Errorf("mounting file system: %w", err)
			k.Halt()
			return
		}
		d := exc.New(k, fs, fault, mem, console, logger)
		runErr = body(k, fs, fault, mem, d, logger, cfg)
		k.Halt()
	}, nil)

	halted := make(chan struct{})
	go func() {
		k.Wait()
		close(halted)
		if events != nil {
			close(events)
		}
	}()

	go runClock(k, step, halted)

	<-halted
	return runErr
}

// runAllWorkloads runs every named scenario in workloads.go to
// completion, each against its own fully independent kernel instance
// (its own *thread.Kernel, disk image, and swap store), concurrently.
// golang.org/x/sync/semaphore bounds how many run at once --
// independent of any kernel's internal state, since it only ever gates
// entry into bootAndRun -- and golang.org/x/sync/errgroup collects the
// first error across all of them.
func runAllWorkloads(cfg config.Kernel) error {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)

	sem := semaphore.NewWeighted(maxConcurrentWorkloads)
	group, ctx := errgroup.WithContext(context.Background())

	for _, name := range names {
		name := name
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			diskPath := fmt.Sprintf("%s.%s", cfg.DiskPath, name)
			body := func(k *thread.Kernel, fs *fsys.FileSystem, fault *vm.FaultHandler, mem *machine.Memory, d *exc.Dispatcher, logger *klog.Logger, cfg config.Kernel) error {
				env := &workloadEnv{k: k, fs: fs, fault: fault, mem: mem, numFrames: cfg.NumFrames, log: logger}
				return runWorkload(env, name)
			}
			if err := bootAndRun(cfg, diskPath, "", false, body); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// runClock drives the simulated clock from a plain OS goroutine that
// is never the kernel's current thread. It only ever calls
// Kernel.RequestTick, the one Kernel method safe to call off the
// single active goroutine; the tick itself is applied, in order, the
// next time the active thread reaches a safe point. In single-step
// mode it waits for Enter on stdin between ticks, the Go equivalent of
// the original "-s" debugging aid that pauses the simulator at each
// context switch point; otherwise it free-runs at a fixed rate.
func runClock(k *thread.Kernel, step bool, halted <-chan struct{}) {
	if !step {
		tickForever(k, halted)
		return
	}
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprintln(os.Stderr, "corekernel: single-step mode, press Enter to advance the clock")
	for {
		select {
		case <-halted:
			return
		default:
		}
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
		k.RequestTick()
	}
}

func tickForever(k *thread.Kernel, halted <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-halted:
			return
		case <-ticker.C:
			k.RequestTick()
		}
	}
}
