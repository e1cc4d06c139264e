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

	"github.com/gokernel/corekernel/pkg/cmdmain"
	"github.com/gokernel/corekernel/pkg/fsys"
)

type mkfsCmd struct {
	disk *diskFlags
}

func init() {
	cmdmain.RegisterCommand("mkfs", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return &mkfsCmd{disk: registerDiskFlags(flags)}
	})
}

func (c *mkfsCmd) Describe() string {
	return "Format a disk image with an empty file system."
}

func (c *mkfsCmd) Usage() {
	fmt.Fprintf(cmdmain.Stderr, "Usage: kctl mkfs [-disk path] [-sectors N] [-cache N]\n")
}

func (c *mkfsCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("mkfs takes no arguments")
	}
	if err := withFileSystem(c.disk, true, func(fs *fsys.FileSystem) error { return nil }); err != nil {
		return err
	}
	fmt.Fprintf(cmdmain.Stdout, "formatted %s: %d sectors\n", *c.disk.path, *c.disk.numSectors)
	return nil
}
