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

type freemapCmd struct {
	disk *diskFlags
}

func init() {
	cmdmain.RegisterCommand("freemap", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return &freemapCmd{disk: registerDiskFlags(flags)}
	})
}

func (c *freemapCmd) Describe() string {
	return "Print the free-sector bitmap and the bootstrap header sectors."
}

func (c *freemapCmd) Usage() {
	fmt.Fprintf(cmdmain.Stderr, "Usage: kctl freemap [-disk path]\n")
}

// RunCommand is the offline analogue of the original's
// FileSystem::Print: rather than walking live in-memory structures, it
// reloads the free map straight off disk and renders it as a run of
// '#' (in use) and '.' (free) characters, one per sector, 64 to a row.
func (c *freemapCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("freemap takes no arguments")
	}

	return withFileSystem(c.disk, false, func(fs *fsys.FileSystem) error {
		freeMap, err := fs.FreeMap()
		if err != nil {
			return err
		}
		numSectors := fs.NumSectors()
		fmt.Fprintf(cmdmain.Stdout, "%d sectors, %d free, %d in use\n", numSectors, freeMap.NumClear(), numSectors-freeMap.NumClear())
		fmt.Fprintf(cmdmain.Stdout, "sector %d: free-map header\nsector %d: root directory header\n", fsys.FreeMapSector, fsys.DirectorySector)

		const perRow = 64
		for row := 0; row < numSectors; row += perRow {
			line := make([]byte, 0, perRow)
			for i := row; i < row+perRow && i < numSectors; i++ {
				if freeMap.Test(i) {
					line = append(line, '#')
				} else {
					line = append(line, '.')
				}
			}
			fmt.Fprintf(cmdmain.Stdout, "%6d  %s\n", row, line)
		}
		return nil
	})
}
