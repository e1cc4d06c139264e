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
	"time"

	"github.com/gokernel/corekernel/pkg/cmdmain"
	"github.com/gokernel/corekernel/pkg/fsys"
)

type statCmd struct {
	disk *diskFlags
}

func init() {
	cmdmain.RegisterCommand("stat", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return &statCmd{disk: registerDiskFlags(flags)}
	})
}

func (c *statCmd) Describe() string { return "Print a file's size, type, and timestamps." }

func (c *statCmd) Usage() {
	fmt.Fprintf(cmdmain.Stderr, "Usage: kctl stat [-disk path] <path>\n")
}

func (c *statCmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return cmdmain.UsageError("stat takes exactly one path")
	}
	path := args[0]

	return withFileSystem(c.disk, false, func(fs *fsys.FileSystem) error {
		of, err := fs.Open(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer of.Close()

		fmt.Fprintf(cmdmain.Stdout, "path:     %s\n", path)
		fmt.Fprintf(cmdmain.Stdout, "size:     %d bytes\n", of.Length())
		fmt.Fprintf(cmdmain.Stdout, "type:     %s\n", orNone(of.Type()))
		fmt.Fprintf(cmdmain.Stdout, "sectors:  %d (header at %d)\n", of.NumSectors(), of.HeaderSector())
		fmt.Fprintf(cmdmain.Stdout, "created:  %s\n", of.CreatedAt().Format(time.RFC3339))
		fmt.Fprintf(cmdmain.Stdout, "modified: %s\n", of.ModifiedAt().Format(time.RFC3339))
		return nil
	})
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
