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
	"fmt"
	"io"
)

// containerHeaderSize is the fixed size of the container header, before
// the 0xE9 bytes of opaque obfuscation padding that follow it.
const containerHeaderSize = 19

// paddingSize is the number of pseudo-random padding bytes following the
// header. They carry no semantic content and are never read.
const paddingSize = 0xE9

var containerMagic = [8]byte{'C', 'r', 'o', 'F', 'i', 'l', 'e', 0}

// Version identifies a CRONOS container format revision.
type Version string

// Supported and recognized container versions (spec.md §6).
const (
	Version0102 Version = "01.02"
	Version0103 Version = "01.03"
	Version0104 Version = "01.04"
	Version0111 Version = "01.11"
)

// encodingKOD is bit 0 of the encoding field: KOD obfuscation enabled.
const encodingKOD = uint16(1)

// Header is the fixed 19-byte container header.
type Header struct {
	// Unknown16 is an opaque 16-bit field at offset +0x08. Carried
	// through for diagnostics; no known semantics.
	Unknown16 uint16

	// FormatVersion is the 5-byte ASCII version string at offset +0x0a.
	FormatVersion Version

	// Encoding is the raw 16-bit encoding field. Bit 0 enables KOD
	// obfuscation; other observed bits are unused by this decoder.
	Encoding uint16

	// BlockSize is the size of an extension block used to chain
	// extended records together.
	BlockSize uint16
}

// KODEnabled reports whether encoding bit 0 (KOD obfuscation) is set.
func (h Header) KODEnabled() bool {
	return h.Encoding&encodingKOD != 0
}

// wide64 reports whether this version uses 64-bit container offsets.
func (h Header) wide64() (bool, error) {
	switch h.FormatVersion {
	case Version0102, Version0104:
		return false, nil
	case Version0103:
		return true, nil
	case Version0111:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedVersion, h.FormatVersion)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedVersion, h.FormatVersion)
	}
}

// readHeader reads and validates the fixed container header at offset 0.
// It does not consume the obfuscation padding that follows.
func readHeader(r io.Reader) (Header, error) {
	var buf [containerHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, archiveErr("reading container header", err)
	}

	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != containerMagic {
		return Header{}, fmt.Errorf("%w: magic %q", ErrNotAnArchive, magic[:])
	}

	h := Header{
		Unknown16:     binary.LittleEndian.Uint16(buf[8:10]),
		FormatVersion: Version(buf[10:15]),
		Encoding:      binary.LittleEndian.Uint16(buf[15:17]),
		BlockSize:     binary.LittleEndian.Uint16(buf[17:19]),
	}

	if _, err := h.wide64(); err != nil {
		return Header{}, err
	}

	return h, nil
}

// descriptorShape bundles the two places where the container version
// changes the on-disk layout: the index descriptor width and the
// extended-record prefix width. Computed once at Open time rather than
// branched on repeatedly, per spec.md §9's recommendation to prefer a
// small shape object over generics for this bounded amount of variance.
type descriptorShape struct {
	wide64 bool

	// descriptorSize is 16 bytes in 64-bit mode, 12 in 32-bit mode.
	descriptorSize int

	// extPrefixSize is the size of the (nextOffset, totalLength) prefix
	// on the primary fragment of an extended record: 12 bytes in
	// 64-bit mode (8-byte offset + 4-byte length), 8 in 32-bit mode.
	extPrefixSize int

	// blockPointerSize is the size of the next-pointer embedded at the
	// start of each extension block: 8 bytes in 64-bit mode, 4 in
	// 32-bit mode.
	blockPointerSize int
}

func shapeFor(h Header) (descriptorShape, error) {
	wide, err := h.wide64()
	if err != nil {
		return descriptorShape{}, err
	}
	if wide {
		return descriptorShape{wide64: true, descriptorSize: 16, extPrefixSize: 12, blockPointerSize: 8}, nil
	}
	return descriptorShape{wide64: false, descriptorSize: 12, extPrefixSize: 8, blockPointerSize: 4}, nil
}
