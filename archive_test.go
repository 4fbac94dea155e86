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
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// encodeHeader builds the fixed 19-byte container header.
func encodeHeader(unknown16 uint16, version Version, encoding, blocksize uint16) []byte {
	buf := make([]byte, containerHeaderSize)
	copy(buf[0:8], containerMagic[:])
	binary.LittleEndian.PutUint16(buf[8:10], unknown16)
	copy(buf[10:15], []byte(version))
	binary.LittleEndian.PutUint16(buf[15:17], encoding)
	binary.LittleEndian.PutUint16(buf[17:19], blocksize)
	return buf
}

// putAt grows buf as needed and writes data at offset, zero-filling any
// gap, and returns the (possibly reallocated) buffer.
func putAt(buf []byte, offset uint64, data []byte) []byte {
	need := int(offset) + len(data)
	if need > len(buf) {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	return buf
}

// encodeDescriptor32 builds one 12-byte descriptor (32-bit offsets).
func encodeDescriptor32(offset uint32, lengthAndFlags, checksum uint32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], offset)
	binary.LittleEndian.PutUint32(buf[4:8], lengthAndFlags)
	binary.LittleEndian.PutUint32(buf[8:12], checksum)
	return buf
}

func encodeIndexHeader(nrDeleted, firstDeleted uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], nrDeleted)
	binary.LittleEndian.PutUint32(buf[4:8], firstDeleted)
	return buf
}

// Scenario 1 (spec.md §8): header-only container, empty index.
func TestArchive_Scenario1_EmptyArchive(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 0x0040)
	index := encodeIndexHeader(0, 0)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	if diff := cmp.Diff(0, a.RecordCount()); diff != "" {
		t.Errorf("RecordCount (-want, +got):\n%s", diff)
	}

	_, _, err = a.ReadRecord(1)
	if !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("ReadRecord(1) error = %v, want ErrInvalidIndex", err)
	}
}

// Scenario 2 (spec.md §8): one inline record, unobfuscated.
func TestArchive_Scenario2_InlineRecord(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 0x0040)
	container = putAt(container, 0x100, []byte("Hello"))

	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x80000005, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(1)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if !ok {
		t.Fatalf("ReadRecord ok = false, want true")
	}
	if diff := cmp.Diff([]byte("Hello"), got); diff != "" {
		t.Errorf("ReadRecord (-want, +got):\n%s", diff)
	}
}

// Scenario 3 (spec.md §8): the same inline record, KOD-obfuscated.
func TestArchive_Scenario3_InlineRecordKOD(t *testing.T) {
	t.Parallel()

	cipher := kodDecode(1, []byte("Hello"))

	container := encodeHeader(0, Version0102, 1, 0x0040) // encoding bit 0 set
	container = putAt(container, 0x100, cipher)

	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x80000005, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(1)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if !ok {
		t.Fatalf("ReadRecord ok = false, want true")
	}
	if diff := cmp.Diff([]byte("Hello"), got); diff != "" {
		t.Errorf("ReadRecord (-want, +got):\n%s", diff)
	}
}

// Scenario 5 (spec.md §8): a deleted slot returns ok == false, err == nil.
func TestArchive_Scenario5_DeletedSlot(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 0x0040)

	index := encodeIndexHeader(1, 2)
	index = append(index, encodeDescriptor32(0x100, 0x80000005, 0)...) // #1: inline, unread here
	index = append(index, encodeDescriptor32(0, 0xFFFFFFFF, 0)...)     // #2: deleted

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(2)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if ok {
		t.Errorf("ReadRecord(2) ok = true, want false for a deleted slot")
	}
	if got != nil {
		t.Errorf("ReadRecord(2) data = %v, want nil", got)
	}
}

// Scenario 6 (spec.md §8): unknown magic fails construction.
func TestArchive_Scenario6_BadMagic(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 0x0040)
	container[0] = 'X' // corrupt "CroFile\x00" -> "XroFile\x00"

	index := encodeIndexHeader(0, 0)

	_, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if !errors.Is(err, ErrNotAnArchive) {
		t.Errorf("Open error = %v, want ErrNotAnArchive", err)
	}
}

// TestArchive_EmptyRecord covers the length==0 boundary: empty buffer,
// no KOD, no decompression attempted (spec.md §8).
func TestArchive_EmptyRecord(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 1, 0x0040) // KOD enabled
	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x80000000, 0)...) // length 0, inline flag set

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(1)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if !ok {
		t.Fatalf("ReadRecord ok = false, want true for an empty (not deleted) record")
	}
	if diff := cmp.Diff([]byte{}, got); diff != "" {
		t.Errorf("ReadRecord (-want, +got):\n%s", diff)
	}
}

// TestArchive_ExtendedRecord builds a three-fragment chained record
// (primary fragment plus two extension blocks) and checks that the
// reassembled payload is exactly total_length bytes, per spec.md
// §4.4.1 and the invariant in §8 ("returned payload length equals the
// total_length embedded in the prefix").
func TestArchive_ExtendedRecord(t *testing.T) {
	t.Parallel()

	const blockSize = 0x10 // 16 bytes: 4-byte pointer + 12 bytes payload

	container := encodeHeader(0, Version0102, 0, blockSize)

	// Primary fragment at 0x100: next=0x200, total=20, then 4 bytes "AAAA".
	primary := make([]byte, 0, 12)
	primary = binary.LittleEndian.AppendUint32(primary, 0x200)
	primary = binary.LittleEndian.AppendUint32(primary, 20)
	primary = append(primary, []byte("AAAA")...)
	container = putAt(container, 0x100, primary)

	// Extension block at 0x200: next=0x300, then 12 bytes "BBBBBBBBBBBB".
	block1 := make([]byte, 0, blockSize)
	block1 = binary.LittleEndian.AppendUint32(block1, 0x300)
	block1 = append(block1, []byte("BBBBBBBBBBBB")...)
	container = putAt(container, 0x200, block1)

	// Extension block at 0x300: next=0 (unused, chain terminates by length), then 12 bytes "CCCCCCCCCCCC".
	block2 := make([]byte, 0, blockSize)
	block2 = binary.LittleEndian.AppendUint32(block2, 0)
	block2 = append(block2, []byte("CCCCCCCCCCCC")...)
	container = putAt(container, 0x300, block2)

	index := encodeIndexHeader(0, 0)
	// flags=0 (extended), length=12 (the primary fragment's on-disk length).
	index = append(index, encodeDescriptor32(0x100, 0x0000000C, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(1)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if !ok {
		t.Fatalf("ReadRecord ok = false, want true")
	}

	want := []byte("AAAABBBBBBBBBBBBCCCC") // 4 + 12 + 4 = 20 bytes, truncated overshoot discarded
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadRecord (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff(20, len(got)); diff != "" {
		t.Errorf("len(ReadRecord) (-want, +got):\n%s", diff)
	}
}

// TestArchive_CyclicChain checks that a chain that never reaches
// total_length is rejected as ErrMalformedArchive rather than looping
// forever (spec.md §9).
func TestArchive_CyclicChain(t *testing.T) {
	t.Parallel()

	const blockSize = 0x10

	container := encodeHeader(0, Version0102, 0, blockSize)

	// Primary fragment: next=0x200, total=1000 (unreachable: the chain
	// below always points back to 0x200).
	primary := make([]byte, 0, 8)
	primary = binary.LittleEndian.AppendUint32(primary, 0x200)
	primary = binary.LittleEndian.AppendUint32(primary, 1000)
	container = putAt(container, 0x100, primary)

	// Block at 0x200 points right back at itself.
	block := make([]byte, 0, blockSize)
	block = binary.LittleEndian.AppendUint32(block, 0x200)
	block = append(block, bytes.Repeat([]byte{'Z'}, blockSize-4)...)
	container = putAt(container, 0x200, block)

	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x00000008, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	_, _, err = a.ReadRecord(1)
	if !errors.Is(err, ErrMalformedArchive) {
		t.Errorf("ReadRecord error = %v, want ErrMalformedArchive", err)
	}
}

// TestArchive_BlocksizeTooSmall covers the §4.4.1 edge policy: blocksize
// must exceed the size of its own embedded pointer.
func TestArchive_BlocksizeTooSmall(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 2) // 2 < 4-byte pointer
	primary := make([]byte, 0, 8)
	primary = binary.LittleEndian.AppendUint32(primary, 0x200)
	primary = binary.LittleEndian.AppendUint32(primary, 10)
	container = putAt(container, 0x100, primary)

	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x00000008, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	_, _, err = a.ReadRecord(1)
	if !errors.Is(err, ErrMalformedArchive) {
		t.Errorf("ReadRecord error = %v, want ErrMalformedArchive", err)
	}
}

// TestArchive_InvalidIndex covers both boundary conditions from
// spec.md §8: index 0, and an index past RecordCount().
func TestArchive_InvalidIndex(t *testing.T) {
	t.Parallel()

	container := encodeHeader(0, Version0102, 0, 0x0040)
	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x80000005, 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	for _, idx := range []int{0, -1, 2, 100} {
		_, _, err := a.ReadRecord(idx)
		if !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("ReadRecord(%d) error = %v, want ErrInvalidIndex", idx, err)
		}
	}
}

// TestArchive_CompressedRecord exercises KOD followed by chunk
// decompression in sequence, the order mandated by spec.md §4.4.
func TestArchive_CompressedRecord(t *testing.T) {
	t.Parallel()

	plainEnvelope := chunkEnvelope(storedDeflateBlock([]byte("compressed payload")))
	cipher := kodDecode(1, plainEnvelope)

	container := encodeHeader(0, Version0102, 1, 0x0040)
	container = putAt(container, 0x100, cipher)

	index := encodeIndexHeader(0, 0)
	index = append(index, encodeDescriptor32(0x100, 0x80000000|uint32(len(cipher)), 0)...)

	a, err := Open(bytes.NewReader(container), bytes.NewReader(index))
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Open (-want, +got):\n%s", diff)
	}

	got, ok, err := a.ReadRecord(1)
	if diff := cmp.Diff(nil, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("ReadRecord (-want, +got):\n%s", diff)
	}
	if !ok {
		t.Fatalf("ReadRecord ok = false, want true")
	}
	if diff := cmp.Diff([]byte("compressed payload"), got); diff != "" {
		t.Errorf("ReadRecord (-want, +got):\n%s", diff)
	}
}
