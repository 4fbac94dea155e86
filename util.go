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
	"os"
)

func leUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func leUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// containerSizeOf best-efforts the container's total size, used to
// catch an extension chain that would read past end-of-container before
// reaching total_length (spec.md §4.4.1) and as the upper bound of
// [Archive.UnreferencedRanges]. A size of 0 disables the chain check
// rather than rejecting archives whose stream type can't report one
// (e.g. a plain io.ReaderAt with no Seeker or Stat), and makes
// UnreferencedRanges return an error.
func containerSizeOf(container interface{}) int64 {
	if f, ok := container.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			return info.Size()
		}
		return 0
	}
	if s, ok := container.(io.Seeker); ok {
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0
		}
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return 0
		}
		if _, err := s.Seek(cur, io.SeekStart); err != nil {
			return 0
		}
		return end
	}
	return 0
}
