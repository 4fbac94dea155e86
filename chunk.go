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
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// chunkTerminator is the three-byte sentinel every compressed envelope
// ends with.
var chunkTerminator = [3]byte{0x00, 0x00, 0x02}

// chunk flag values. Both have been observed in the wild; either marks a
// valid chunk header.
const (
	chunkFlagA = uint16(0x0800)
	chunkFlagB = uint16(0x0008)
)

// minChunkEnvelopeSize is the smallest a compressed envelope can be:
// a single 8-byte (size, flag, crc) chunk header plus the 3-byte
// terminator. The detector requires at least these 11 bytes (spec.md
// §4.2) before it will even attempt the walk.
const minChunkEnvelopeSize = 11

// IsCompressed reports whether data looks like a CRONOS compressed-chunk
// envelope: it ends in the 00 00 02 terminator and a walk of
// (size, flag) big-endian chunk headers advancing by size+2 bytes each
// lands exactly on len(data)-3. Any deviation, including a short buffer,
// returns false rather than an error — this is a heuristic recognizer,
// not a validator, and is expected to run unconditionally over every
// KOD-decoded record (spec.md §9).
func IsCompressed(data []byte) bool {
	if len(data) < minChunkEnvelopeSize {
		return false
	}
	if !bytes.HasSuffix(data, chunkTerminator[:]) {
		return false
	}

	end := len(data) - 3
	o := 0
	for o < end {
		if o+4 > len(data) {
			return false
		}
		size := binary.BigEndian.Uint16(data[o : o+2])
		flag := binary.BigEndian.Uint16(data[o+2 : o+4])
		if flag != chunkFlagA && flag != chunkFlagB {
			return false
		}
		o += int(size) + 2
	}
	return o == end
}

// Decompress inflates a CRONOS compressed-chunk envelope. Each chunk is
// a big-endian (size, flag) header, a little-endian stored CRC-32 (never
// verified, per spec.md §9), and size-6 bytes of raw DEFLATE payload.
// Chunks are walked and their inflated output concatenated until the
// walk reaches the trailing 00 00 02 terminator.
//
// Callers should confirm [IsCompressed] first; Decompress does not
// re-validate the envelope shape beyond what it needs to extract each
// chunk, and returns ErrDecompressionError on any structural problem or
// inflate failure.
func Decompress(data []byte) ([]byte, error) {
	var out bytes.Buffer

	end := len(data) - 3
	if end < 0 {
		return nil, fmt.Errorf("%w: envelope too short", ErrDecompressionError)
	}

	o := 0
	for o < end {
		if o+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk header at offset %d", ErrDecompressionError, o)
		}
		size := binary.BigEndian.Uint16(data[o : o+2])
		flag := binary.BigEndian.Uint16(data[o+2 : o+4])
		if flag != chunkFlagA && flag != chunkFlagB {
			return nil, fmt.Errorf("%w: unexpected chunk flag %#04x at offset %d", ErrDecompressionError, flag, o)
		}
		// storedCRC, little-endian, intentionally unverified.
		_ = binary.LittleEndian.Uint32(data[o+4 : o+8])

		if size < 6 {
			return nil, fmt.Errorf("%w: chunk size %d too small at offset %d", ErrDecompressionError, size, o)
		}
		payloadEnd := o + 8 + int(size) - 6
		if payloadEnd > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk payload at offset %d", ErrDecompressionError, o)
		}

		fr := flate.NewReader(bytes.NewReader(data[o+8 : payloadEnd]))
		if _, err := io.Copy(&out, fr); err != nil {
			fr.Close()
			return nil, fmt.Errorf("%w: inflate at offset %d: %v", ErrDecompressionError, o, err)
		}
		fr.Close()

		o += int(size) + 2
	}

	if o != end {
		return nil, fmt.Errorf("%w: chunk walk desynchronized", ErrDecompressionError)
	}

	return out.Bytes(), nil
}
