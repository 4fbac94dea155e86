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

// Command crodump dumps the records of a CRONOS database archive.
package main

import (
	"os"
)

func main() {
	app := newCrodumpApp()
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already printed the error and set the exit
		// code; os.Exit here just makes sure we actually leave with
		// a non-zero status if ExitErrHandler somehow didn't.
		os.Exit(ExitCodeUnknownError)
	}
}
