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
	"io"
)

// Archive pairs an open container stream with its parsed index. Readers
// are not assumed safe for concurrent use: record reads are a
// seek-then-read sequence against a single container handle, matching
// the single-threaded-per-archive model of spec.md §5.
//
// An Archive is immutable after [Open]: the descriptor table is read
// eagerly once at construction, and the container is read lazily, one
// record at a time, thereafter.
type Archive struct {
	container io.ReaderAt
	closer    io.Closer

	header Header
	shape  descriptorShape
	index  *Index

	containerSize int64

	logger         Logger
	maxChainLength int
}

// Option configures an [Archive] at construction time.
type Option func(*archiveConfig)

type archiveConfig struct {
	logger         Logger
	maxChainLength int
}

// WithLogger overrides the diagnostic sink used for soft failures (the
// trailing partial index descriptor warning) and dump-mode progress.
// Passing nil installs a logger that discards everything.
func WithLogger(l Logger) Option {
	return func(c *archiveConfig) {
		if l == nil {
			l = nopLogger{}
		}
		c.logger = l
	}
}

// WithMaxChainLength bounds how many extension blocks a single extended
// record may chain through before [Archive.ReadRecord] (and the
// [Archive.Dump] walk) gives up and reports [ErrMalformedArchive]. The default is computed
// per record from its own total_length and the archive's blocksize, per
// spec.md §9's recommendation; WithMaxChainLength overrides that default
// with a fixed ceiling.
func WithMaxChainLength(n int) Option {
	return func(c *archiveConfig) {
		c.maxChainLength = n
	}
}

// seekerReaderAt adapts an io.ReadSeeker (what callers most commonly
// have open) to io.ReaderAt without assuming it already implements one.
type seekerReaderAt struct {
	rs interface {
		io.Reader
		io.Seeker
	}
}

func (s seekerReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}

// Open constructs an Archive from an already-open container stream and
// its companion index stream. The pairing and naming convention
// (.dat/.tad) are the caller's concern (spec.md §6); Open only needs the
// two byte streams.
//
// container must support random access (it satisfies [io.ReaderAt], or
// is both an [io.Reader] and [io.Seeker]). index is read once and fully,
// front to back.
//
// If container additionally implements [io.Closer], Open retains it so
// that [Archive.Close] can release it; callers that want to manage the
// container's lifetime themselves should not rely on this behavior.
func Open(container interface{}, index io.Reader, opts ...Option) (*Archive, error) {
	cfg := archiveConfig{
		logger:         defaultLogger(),
		maxChainLength: 0,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var readerAt io.ReaderAt
	switch c := container.(type) {
	case io.ReaderAt:
		readerAt = c
	case interface {
		io.Reader
		io.Seeker
	}:
		readerAt = seekerReaderAt{rs: c}
	default:
		return nil, fmt.Errorf("%w: container must implement io.ReaderAt or io.ReadSeeker", ErrArchive)
	}

	size := containerSizeOf(container)

	headerReader := io.NewSectionReader(readerAt, 0, containerHeaderSize)
	header, err := readHeader(headerReader)
	if err != nil {
		return nil, err
	}

	shape, err := shapeFor(header)
	if err != nil {
		return nil, err
	}

	idx, err := readIndex(index, shape, cfg.logger)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		container:      readerAt,
		header:         header,
		shape:          shape,
		index:          idx,
		containerSize:  size,
		logger:         cfg.logger,
		maxChainLength: cfg.maxChainLength,
	}

	if c, ok := container.(io.Closer); ok {
		a.closer = c
	}

	return a, nil
}

// Close releases the container's underlying handle, if Open was able to
// retain one. It is safe to call Close more than once.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}

// Header returns the parsed container header.
func (a *Archive) Header() Header {
	return a.header
}

// RecordCount returns the number of descriptors in the index, including
// deleted slots.
func (a *Archive) RecordCount() int {
	return len(a.index.Descriptors)
}

// ReadRaw performs an absolute container read of length bytes at offset.
// It does no validation beyond the read itself; ReadRecord uses it
// internally, and dump mode uses it to read primary fragments and
// extension blocks.
func (a *Archive) ReadRaw(offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := a.container.ReadAt(buf, int64(offset)); err != nil {
		return nil, archiveErr(fmt.Sprintf("reading %d bytes at offset %#x", length, offset), err)
	}
	return buf, nil
}

// descriptor returns the 1-based record's descriptor, validating the
// index bound (spec.md §4.4, §8: index 0 and index past end are both
// ErrInvalidIndex).
func (a *Archive) descriptor(index int) (Descriptor, error) {
	if index <= 0 || index > len(a.index.Descriptors) {
		return Descriptor{}, fmt.Errorf("%w: %d (have %d records)", ErrInvalidIndex, index, len(a.index.Descriptors))
	}
	return a.index.Descriptors[index-1], nil
}

// ReadRecord returns the decoded bytes of the 1-based record index.
//
// It reports ok == false with a nil error when the descriptor marks a
// deleted slot: deleted records are not an error condition (spec.md
// §7). It returns ErrInvalidIndex for index 0 or any index beyond
// RecordCount(). Any other failure (malformed extension chain,
// decompression failure, I/O error) is returned as err with ok == false.
func (a *Archive) ReadRecord(index int) (data []byte, ok bool, err error) {
	desc, err := a.descriptor(index)
	if err != nil {
		return nil, false, err
	}
	if desc.Deleted() {
		return nil, false, nil
	}

	raw, err := a.ReadRaw(desc.Offset, desc.Length())
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	if len(raw) == 0 {
		payload = raw
	} else if desc.Extended() {
		payload, err = a.reassembleExtended(raw)
		if err != nil {
			return nil, false, err
		}
	} else {
		payload = raw
	}

	if len(payload) > 0 {
		if a.header.KODEnabled() {
			//nolint:gosec // record index is always >=1 and fits uint32 in practice.
			payload = kodDecode(uint32(index), payload)
		}
		if IsCompressed(payload) {
			payload, err = Decompress(payload)
			if err != nil {
				return nil, false, err
			}
		}
	}

	return payload, true, nil
}

// reassembleExtended reassembles a chained extended record from its
// primary fragment. primary must be the complete, undecoded primary
// fragment bytes (the descriptor's raw read), beginning with the
// (nextOffset, totalLength) prefix described in spec.md §4.4.1.
func (a *Archive) reassembleExtended(primary []byte) ([]byte, error) {
	shape := a.shape
	if len(primary) < shape.extPrefixSize {
		return nil, fmt.Errorf("%w: extended record prefix truncated", ErrMalformedArchive)
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

	payload := make([]byte, 0, totalLength)
	payload = append(payload, primary[shape.extPrefixSize:]...)

	blockSize := int(a.header.BlockSize)
	if blockSize <= shape.blockPointerSize {
		return nil, fmt.Errorf("%w: blocksize %d too small for %d-byte pointer", ErrMalformedArchive, blockSize, shape.blockPointerSize)
	}

	maxChain := a.maxChainLength
	if maxChain <= 0 {
		payloadPerBlock := blockSize - shape.blockPointerSize
		maxChain = int(totalLength)/payloadPerBlock + 2
	}

	for chainLen := 0; uint32(len(payload)) < totalLength; chainLen++ {
		if chainLen >= maxChain {
			return nil, fmt.Errorf("%w: extension chain exceeded %d blocks", ErrMalformedArchive, maxChain)
		}

		if a.containerSize > 0 && nextOffset+uint64(blockSize) > uint64(a.containerSize) {
			return nil, fmt.Errorf("%w: extension block at %#x would read past end of container", ErrMalformedArchive, nextOffset)
		}

		block, err := a.ReadRaw(nextOffset, uint32(blockSize))
		if err != nil {
			return nil, err
		}
		if len(block) < shape.blockPointerSize {
			return nil, fmt.Errorf("%w: truncated extension block at %#x", ErrMalformedArchive, nextOffset)
		}

		if shape.wide64 {
			nextOffset = leUint64(block[0:8])
		} else {
			nextOffset = uint64(leUint32(block[0:4]))
		}
		payload = append(payload, block[shape.blockPointerSize:]...)
	}

	// Overshoot bytes beyond totalLength are discarded here; dump mode
	// keeps them as a diagnostic "tail" instead (spec.md §4.4.1).
	return payload[:totalLength], nil
}
