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
	"encoding/binary"
	"hash/crc32"
)

// ChunkCRC reads the little-endian stored CRC-32 (IEEE) embedded in a
// single compressed-chunk header, without verifying it against the
// chunk's inflated contents. spec.md §9 is explicit that this field is
// never checked by this package; ChunkCRC exists only so diagnostic
// tooling (e.g. [Archive.Dump] callers) can report the mismatch a
// genuinely corrupt archive would otherwise hide.
//
// header must be the 8-byte (size, flag, crc) chunk header; it panics
// if shorter.
func ChunkCRC(header []byte) uint32 {
	return binary.LittleEndian.Uint32(header[4:8])
}

// ComputedCRC32 computes the IEEE CRC-32 of data, for comparison against
// a [Descriptor.Checksum] or [ChunkCRC] value by diagnostic tooling.
// Never used by this package to reject a record.
func ComputedCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
