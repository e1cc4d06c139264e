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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/gokernel/corekernel/pkg/config"
	"github.com/gokernel/corekernel/pkg/lru"
)

func usage() {
	fmt.Fprint(os.Stderr, "usage: diskfuse [-disk path] [-sectors N] [-cache N] <mountpoint>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	cfg := config.Default()
	disk := flag.String("disk", cfg.DiskPath, "disk image path, or backend:path (file, leveldb, kv)")
	numSectors := flag.Int("sectors", cfg.NumSectors, "sector count")
	cacheSlots := flag.Int("cache", cfg.CacheSlots, "sector cache slots")
	attrCache := flag.Int("attr-cache", 256, "path attribute cache entries")
	debug := flag.Bool("debug", false, "log fuse protocol traffic")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	mountPoint := flag.Arg(0)

	srv, err := startFSServer(diskParams{path: *disk, numSectors: *numSectors, cacheSlots: *cacheSlots})
	if err != nil {
		log.Fatal(err)
	}

	if *debug {
		fuse.Debug = func(msg interface{}) { log.Print(msg) }
	}

	conn, err := fuse.Mount(mountPoint, fuse.VolumeName(filepath.Base(mountPoint)), fuse.ReadOnly())
	if err != nil {
		srv.Stop()
		log.Fatalf("mount: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)

	doneServe := make(chan error, 1)
	go func() {
		doneServe <- fusefs.Serve(conn, &diskFS{srv: srv, attrs: lru.New(*attrCache)})
	}()

	select {
	case err := <-doneServe:
		log.Printf("serve returned: %v", err)
		<-conn.Ready
		if err := conn.MountError; err != nil {
			log.Printf("mount error: %v", err)
		}
	case sig := <-sigc:
		log.Printf("signal %s received, shutting down", sig)
	}

	time.AfterFunc(2*time.Second, func() { os.Exit(1) })

	log.Printf("unmounting %s", mountPoint)
	if err := unmount(mountPoint); err != nil {
		log.Printf("unmount: %v", err)
	}
	srv.Stop()
}
