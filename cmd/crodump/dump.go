// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rodaine/table"

	crocore "github.com/paulll-cronos/crocore"
)

// dump runs the "dump" action: opening a container/index pair and
// printing a table of every record the index describes.
type dump struct {
	path         string
	indexPath    string
	preview      int
	unreferenced bool
	out          io.Writer
}

func (d *dump) resolveIndexPath() string {
	if d.indexPath != "" {
		return d.indexPath
	}
	if i := strings.LastIndex(d.path, "."); i >= 0 {
		return d.path[:i] + ".tad"
	}
	return d.path + ".tad"
}

func (d *dump) Run() error {
	container, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: opening container: %w", ErrCrodump, err)
	}
	defer container.Close()

	indexPath := d.resolveIndexPath()
	index, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("%w: opening index %q: %w", ErrCrodump, indexPath, err)
	}
	defer index.Close()

	a, err := crocore.Open(container, index, crocore.WithLogger(crocore.DefaultLogger()))
	if err != nil {
		return fmt.Errorf("%w: opening archive: %w", ErrCrodump, err)
	}
	defer a.Close()

	h := a.Header()
	_, err = fmt.Fprintf(d.out, "version=%s unknown16=%#04x encoding=%#x blocksize=%d records=%d\n",
		h.FormatVersion, h.Unknown16, h.Encoding, h.BlockSize, a.RecordCount())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCrodump, err)
	}

	tbl := table.New("#", "deleted", "offset", "length", "flags", "checksum", "extended", "chain", "compressed", "preview", "error")
	for _, entry := range a.Dump(d.preview) {
		errStr := ""
		if entry.Err != nil {
			errStr = entry.Err.Error()
		}
		chain := make([]string, len(entry.Chain))
		for i, ofs := range entry.Chain {
			chain[i] = fmt.Sprintf("%#x", ofs)
		}
		tbl.AddRow(
			entry.Index,
			entry.Deleted,
			fmt.Sprintf("%#x", entry.Offset),
			entry.Length,
			fmt.Sprintf("%#02x", entry.Flags),
			fmt.Sprintf("%#08x", entry.Checksum),
			entry.Extended,
			strings.Join(chain, ";"),
			entry.Compressed,
			previewString(entry.Preview),
			errStr,
		)
	}
	tbl.WithWriter(d.out).Print()

	if d.unreferenced {
		return d.printUnreferenced(a)
	}
	return nil
}

func (d *dump) printUnreferenced(a *crocore.Archive) error {
	ranges, err := a.UnreferencedRanges()
	if err != nil {
		return fmt.Errorf("%w: computing unreferenced ranges: %w", ErrCrodump, err)
	}

	tbl := table.New("start", "end", "length", "description")
	for _, r := range ranges {
		tbl.AddRow(fmt.Sprintf("%#x", r.Start), fmt.Sprintf("%#x", r.End), r.End-r.Start, r.Description)
	}
	tbl.WithWriter(d.out).Print()
	return nil
}

func previewString(b []byte) string {
	s := fmt.Sprintf("%q", b)
	const maxLen = 80
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
