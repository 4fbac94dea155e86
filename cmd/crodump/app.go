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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	// ExitCodeSuccess is successful error code.
	ExitCodeSuccess int = iota

	// ExitCodeFlagParseError is the exit code for a flag parsing error.
	ExitCodeFlagParseError

	// ExitCodeUnknownError is the exit code for an unknown error.
	ExitCodeUnknownError
)

// ErrFlagParse is a flag parsing error.
var ErrFlagParse = errors.New("parsing flags")

// ErrCrodump is the base error for CLI-layer failures.
var ErrCrodump = errors.New("crodump")

func init() {
	// Set the HelpFlag to a random name so that it isn't used. `cli`
	// handles the flag with the root command such that it takes a
	// command name argument but we don't use commands.
	//
	// This is done because `crodump --help foo` would display a
	// "command foo not found" error instead of the help.
	//
	// This flag is hidden by the help output.
	// See: github.com/urfave/cli/issues/1809
	cli.HelpFlag = &cli.BoolFlag{
		Name:               "d41d8cd98f00b204e980",
		DisableDefaultText: true,
	}
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

func newCrodumpApp() *cli.App {
	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "Dump the records of a CRONOS (.dat/.tad) archive.",
		Description: strings.Join([]string{
			"crodump reads a CRONOS database archive's container and index",
			"files and prints each record's decoded bytes.",
			"It does not interpret table schema, render HTML, or write files;",
			"it is a diagnostic tool over the crocore decoder.",
		}, "\n"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "index",
				Usage: "path to the companion index (.tad) file; defaults to replacing the container's extension with .tad",
			},
			&cli.IntFlag{
				Name:  "preview",
				Usage: "number of decoded bytes to preview per record",
				Value: 64,
			},
			&cli.BoolFlag{
				Name:               "unreferenced",
				Usage:              "also list container byte ranges not referenced by any record",
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "help",
				Usage:              "print this help text and exit",
				Aliases:            []string{"h"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "version",
				Usage:              "print version information and exit",
				Aliases:            []string{"v"},
				DisableDefaultText: true,
			},
		},
		ArgsUsage:       "PATH",
		Copyright:       "Google LLC",
		HideHelp:        true,
		HideHelpCommand: true,
		Action: func(c *cli.Context) error {
			if c.Bool("help") {
				check(cli.ShowAppHelp(c))
				return nil
			}

			if c.Bool("version") {
				return printVersion(c)
			}

			args := c.Args().Slice()
			if len(args) != 1 {
				return fmt.Errorf("%w: %w: expected exactly one archive path", ErrCrodump, ErrFlagParse)
			}

			d := &dump{
				path:         args[0],
				indexPath:    c.String("index"),
				preview:      c.Int("preview"),
				unreferenced: c.Bool("unreferenced"),
				out:          c.App.Writer,
			}
			return d.Run()
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err == nil {
				return
			}

			_ = must(fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", c.App.Name, err))
			if errors.Is(err, ErrFlagParse) {
				cli.OsExiter(ExitCodeFlagParseError)
				return
			}

			cli.OsExiter(ExitCodeUnknownError)
		},
	}
}
