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
	"fmt"
	"sort"
)

// ByteRange is a half-open [Start, End) span of container bytes.
type ByteRange struct {
	Start uint64
	End   uint64

	// Description identifies what touched this range, e.g.
	// "record #12" or "record #12 ext".
	Description string
}

// DumpEntry is one descriptor's diagnostic summary, produced by
// [Archive.Dump]. It mirrors the line-per-record report of the
// reference implementation's dump mode, recovered in SPEC_FULL.md §4
// from original_source/crodump/Datafile.py since the distilled spec
// only sketched the dump operation.
type DumpEntry struct {
	Index      int
	Deleted    bool
	Offset     uint64
	Length     uint32
	Flags      uint8
	Checksum   uint32
	Extended   bool
	Compressed bool

	// Chain lists the next-pointer offsets walked for an extended
	// record, in order, starting with the prefix's own next_offset.
	Chain []uint64

	// Preview is a short decoded-bytes preview, bounded in length by
	// the caller's preview size.
	Preview []byte

	// Tail holds extended-record overshoot bytes beyond total_length,
	// discarded by ReadRecord but preserved here for diagnostics
	// (spec.md §4.4.1).
	Tail []byte

	// Err is set if this descriptor could not be fully decoded; the
	// entry still reports whatever offset/flags/checksum information
	// was available.
	Err error
}

// dumpState accumulates touched byte ranges across a Dump walk.
type dumpState struct {
	ranges []ByteRange
}

func (s *dumpState) touch(start, end uint64, desc string) {
	s.ranges = append(s.ranges, ByteRange{Start: start, End: end, Description: desc})
}

// Dump walks every descriptor (including deleted slots) and returns one
// [DumpEntry] per descriptor, in index order. previewLen bounds how many
// decoded bytes are copied into DumpEntry.Preview (0 means no preview).
//
// Dump never returns a non-nil error for a single bad record: per-record
// problems are reported in that entry's Err field so the walk can
// continue over the rest of the archive, matching the reference tool's
// behavior of printing one line per record regardless of individual
// failures.
func (a *Archive) Dump(previewLen int) []DumpEntry {
	state := &dumpState{}
	entries := make([]DumpEntry, len(a.index.Descriptors))

	for i, desc := range a.index.Descriptors {
		recordIndex := i + 1
		a.logger.Debug("dumping record", "index", recordIndex)
		entry := DumpEntry{
			Index:    recordIndex,
			Deleted:  desc.Deleted(),
			Offset:   desc.Offset,
			Length:   desc.Length(),
			Flags:    desc.Flags(),
			Checksum: desc.Checksum,
		}

		if entry.Deleted {
			entries[i] = entry
			continue
		}

		raw, err := a.ReadRaw(desc.Offset, desc.Length())
		if err != nil {
			entry.Err = err
			entries[i] = entry
			continue
		}
		state.touch(desc.Offset, desc.Offset+uint64(desc.Length()), fmt.Sprintf("record #%d", recordIndex))

		var payload, tail []byte
		if len(raw) == 0 {
			payload = raw
		} else if desc.Extended() {
			entry.Extended = true
			var chain []uint64
			payload, tail, chain, err = a.reassembleExtendedTracked(raw, state, recordIndex)
			entry.Chain = chain
			entry.Tail = tail
			if err != nil {
				entry.Err = err
				entries[i] = entry
				continue
			}
		} else {
			payload = raw
		}

		decoded := payload
		if a.header.KODEnabled() && len(decoded) > 0 {
			//nolint:gosec // record index is always >=1 and fits uint32 in practice.
			decoded = kodDecode(uint32(recordIndex), decoded)
		}
		if IsCompressed(decoded) {
			if out, derr := Decompress(decoded); derr == nil {
				decoded = out
				entry.Compressed = true
			} else {
				entry.Err = derr
			}
		}

		if previewLen > 0 && len(decoded) > 0 {
			n := previewLen
			if n > len(decoded) {
				n = len(decoded)
			}
			entry.Preview = append([]byte(nil), decoded[:n]...)
		}

		entries[i] = entry
	}

	return entries
}

// reassembleExtendedTracked is reassembleExtended instrumented to record
// every touched block range and the next-pointer chain, and to return
// overshoot tail bytes instead of discarding them, for [Archive.Dump].
func (a *Archive) reassembleExtendedTracked(primary []byte, state *dumpState, recordIndex int) (payload, tail []byte, chain []uint64, err error) {
	shape := a.shape
	if len(primary) < shape.extPrefixSize {
		return nil, nil, nil, fmt.Errorf("%w: extended record prefix truncated", ErrMalformedArchive)
	}

	var nextOffset uint64
	var totalLength uint32
	if shape.wide64 {
		nextOffset = leUint64(primary[0:8])
		totalLength = leUint32(primary[8:12])
	} else {
		nextOffset = uint64(leUint32(primary[0:4]))
		totalLength = leUint32(primary[4:8])
	}
	chain = append(chain, nextOffset)

	blockSize := int(a.header.BlockSize)
	if blockSize <= shape.blockPointerSize {
		return nil, nil, chain, fmt.Errorf("%w: blocksize %d too small for %d-byte pointer", ErrMalformedArchive, blockSize, shape.blockPointerSize)
	}

	payload = append(payload, primary[shape.extPrefixSize:]...)

	maxChain := a.maxChainLength
	if maxChain <= 0 {
		payloadPerBlock := blockSize - shape.blockPointerSize
		maxChain = int(totalLength)/payloadPerBlock + 2
	}

	for chainLen := 0; uint32(len(payload)) < totalLength; chainLen++ {
		if chainLen >= maxChain {
			return payload, nil, chain, fmt.Errorf("%w: extension chain exceeded %d blocks", ErrMalformedArchive, maxChain)
		}

		if a.containerSize > 0 && nextOffset+uint64(blockSize) > uint64(a.containerSize) {
			return payload, nil, chain, fmt.Errorf("%w: extension block at %#x would read past end of container", ErrMalformedArchive, nextOffset)
		}

		block, rerr := a.ReadRaw(nextOffset, uint32(blockSize))
		if rerr != nil {
			return payload, nil, chain, rerr
		}
		state.touch(nextOffset, nextOffset+uint64(blockSize), fmt.Sprintf("record #%d ext", recordIndex))
		if len(block) < shape.blockPointerSize {
			return payload, nil, chain, fmt.Errorf("%w: truncated extension block at %#x", ErrMalformedArchive, nextOffset)
		}

		if shape.wide64 {
			nextOffset = leUint64(block[0:8])
		} else {
			nextOffset = uint64(leUint32(block[0:4]))
		}
		chain = append(chain, nextOffset)
		payload = append(payload, block[shape.blockPointerSize:]...)
	}

	if uint32(len(payload)) > totalLength {
		tail = append([]byte(nil), payload[totalLength:]...)
	}

	return payload[:totalLength], tail, chain, nil
}

// UnreferencedRanges enumerates the set-complement of every byte range
// touched while decoding every record, within [0, containerSize). This
// is the set-complement partition required by spec.md §8 and §4.4.2.
//
// UnreferencedRanges performs its own Dump walk; callers that already
// have a Dump result do not need to call Dump separately, but
// UnreferencedRanges does not accept one to avoid coupling the two
// walks' internal tracking state across calls.
func (a *Archive) UnreferencedRanges() ([]ByteRange, error) {
	if a.containerSize <= 0 {
		return nil, fmt.Errorf("%w: container size unknown; cannot enumerate unreferenced ranges", ErrArchive)
	}

	state := &dumpState{}
	for i, desc := range a.index.Descriptors {
		if desc.Deleted() {
			continue
		}
		recordIndex := i + 1
		raw, err := a.ReadRaw(desc.Offset, desc.Length())
		if err != nil {
			continue
		}
		state.touch(desc.Offset, desc.Offset+uint64(desc.Length()), fmt.Sprintf("record #%d", recordIndex))
		if len(raw) > 0 && desc.Extended() {
			_, _, _, _ = a.reassembleExtendedTracked(raw, state, recordIndex)
		}
	}

	sort.Slice(state.ranges, func(i, j int) bool {
		return state.ranges[i].Start < state.ranges[j].Start
	})

	var gaps []ByteRange
	var o uint64
	for _, r := range state.ranges {
		if r.Start > o {
			gaps = append(gaps, ByteRange{Start: o, End: r.Start})
		}
		if r.End > o {
			o = r.End
		}
	}
	if o < uint64(a.containerSize) {
		gaps = append(gaps, ByteRange{Start: o, End: uint64(a.containerSize)})
	}

	return gaps, nil
}
