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

package crocore

import (
	"errors"
	"fmt"
)

// ErrArchive is the base error for all crocore errors.
var ErrArchive = errors.New("crocore")

var (
	// ErrNotAnArchive indicates the container magic did not match "CroFile\x00".
	ErrNotAnArchive = fmt.Errorf("%w: not a CRONOS archive", ErrArchive)

	// ErrUnsupportedVersion indicates a recognized-but-unsupported, or
	// entirely unknown, format version string.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrArchive)

	// ErrInvalidIndex indicates a record index of 0 or past the end of
	// the descriptor table.
	ErrInvalidIndex = fmt.Errorf("%w: invalid record index", ErrArchive)

	// ErrMalformedArchive indicates an extension-chain walk that reads
	// past end of container, a blocksize too small to hold its own
	// next-pointer, or other structural inconsistency discovered while
	// reassembling a record.
	ErrMalformedArchive = fmt.Errorf("%w: malformed archive", ErrArchive)

	// ErrDecompressionError indicates a compressed-chunk envelope whose
	// walk desynchronized, or whose DEFLATE payload failed to inflate.
	ErrDecompressionError = fmt.Errorf("%w: decompression failed", ErrArchive)
)

// archiveErr wraps err with ErrArchive, preserving err for errors.Is/As.
func archiveErr(context string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrArchive, context, err)
}
