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

// Package crocore reads CRONOS database archives: a paired
// container-and-index file format that mixes byte orders within single
// structures, supports two offset widths depending on file version, and
// layers an obfuscation pass and an optional chunked-DEFLATE compression
// pass over variable-length records whose payloads may chain across
// auxiliary blocks.
//
// crocore exposes only the record-level decoder: opening an archive,
// listing its records, and reading individual records as raw bytes.
// Schema interpretation, rendering, and file extraction are left to
// callers.
//
// Unless otherwise informed clients should not assume implementations in
// this package are safe for parallel use against a single [Archive].
package crocore
