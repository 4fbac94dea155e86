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
	"io"
)

// deletedSentinel marks a descriptor slot as deleted: the entire 32-bit
// length_and_flags word equals this value.
const deletedSentinel = uint32(0xFFFFFFFF)

// lengthMask isolates the low 24 bits of length_and_flags.
const lengthMask = uint32(0x00FFFFFF)

// Descriptor locates one record's primary fragment in the container.
type Descriptor struct {
	// Offset is the absolute container offset of the primary fragment.
	Offset uint64

	// LengthAndFlags packs the high 8 bits as flags and the low 24 bits
	// as the primary fragment's length, unless it equals the deleted
	// sentinel 0xFFFFFFFF.
	LengthAndFlags uint32

	// Checksum is the stored per-record checksum. Never verified by
	// this package (spec.md §9); exposed only for diagnostics.
	Checksum uint32
}

// Deleted reports whether this descriptor marks a deleted slot.
func (d Descriptor) Deleted() bool {
	return d.LengthAndFlags == deletedSentinel
}

// Flags returns the high 8 bits of LengthAndFlags.
func (d Descriptor) Flags() uint8 {
	return uint8(d.LengthAndFlags >> 24)
}

// Length returns the low 24 bits of LengthAndFlags: the primary
// fragment's length in the container.
func (d Descriptor) Length() uint32 {
	return d.LengthAndFlags & lengthMask
}

// Extended reports whether this descriptor's primary fragment is an
// extended-record prefix rather than a complete inline payload: flags
// are zero and the fragment is non-empty.
func (d Descriptor) Extended() bool {
	return !d.Deleted() && d.Flags() == 0 && d.Length() > 0
}

// Index is the parsed companion index (.tad) file: a small header
// followed by one fixed-width descriptor per record slot.
type Index struct {
	// NumDeleted is the nr-deleted index header field.
	NumDeleted uint32

	// FirstDeleted is the first-deleted index header field.
	FirstDeleted uint32

	// Descriptors holds every record slot, including deleted ones, in
	// file order. Record N (1-based) is Descriptors[N-1].
	Descriptors []Descriptor
}

// readIndex parses the index byte stream. shape.wide64 selects the
// 16-byte (64-bit offset) or 12-byte (32-bit offset) descriptor layout.
// A trailing partial descriptor is tolerated: logger.Warn is called and
// the remainder discarded, matching the reference implementation's
// warn-and-continue policy (spec.md §4.3, §9).
func readIndex(r io.Reader, shape descriptorShape, logger Logger) (*Index, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, archiveErr("reading index header", err)
	}

	idx := &Index{
		NumDeleted:   binary.LittleEndian.Uint32(hdr[0:4]),
		FirstDeleted: binary.LittleEndian.Uint32(hdr[4:8]),
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, archiveErr("reading index descriptors", err)
	}

	width := shape.descriptorSize
	n := len(rest) / width
	if rem := len(rest) % width; rem != 0 {
		logger.Warn("index file length is not a multiple of the descriptor width; discarding trailing partial descriptor",
			"descriptorWidth", width, "leftoverBytes", rem)
	}

	idx.Descriptors = make([]Descriptor, n)
	for i := 0; i < n; i++ {
		b := rest[i*width : (i+1)*width]
		var d Descriptor
		if shape.wide64 {
			d.Offset = binary.LittleEndian.Uint64(b[0:8])
			d.LengthAndFlags = binary.LittleEndian.Uint32(b[8:12])
			d.Checksum = binary.LittleEndian.Uint32(b[12:16])
		} else {
			d.Offset = uint64(binary.LittleEndian.Uint32(b[0:4]))
			d.LengthAndFlags = binary.LittleEndian.Uint32(b[4:8])
			d.Checksum = binary.LittleEndian.Uint32(b[8:12])
		}
		idx.Descriptors[i] = d
	}

	return idx, nil
}
