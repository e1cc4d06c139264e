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

type catCmd struct {
	disk *diskFlags
}

func init() {
	cmdmain.RegisterCommand("cat", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return &catCmd{disk: registerDiskFlags(flags)}
	})
}

func (c *catCmd) Describe() string { return "Print a file's contents to stdout." }

func (c *catCmd) Usage() {
	fmt.Fprintf(cmdmain.Stderr, "Usage: kctl cat [-disk path] <path>\n")
}

func (c *catCmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return cmdmain.UsageError("cat takes exactly one path")
	}
	path := args[0]

	return withFileSystem(c.disk, false, func(fs *fsys.FileSystem) error {
		of, err := fs.Open(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer of.Close()

		buf := make([]byte, of.Length())
		if _, err := of.ReadAt(buf, 0); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		_, err = cmdmain.Stdout.Write(buf)
		return err
	})
}
