// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/plexrec/core"
)

// matrixMagic prefixes every encoded matrix blob.
const matrixMagic = "plexrec-emb/1"

// ValidateEmbeddingSet checks the structural pairing of a set: one alignment
// entry per vector and a single non-zero dimension shared by every vector.
// An empty set is valid.
func ValidateEmbeddingSet(set *core.EmbeddingSet) error {
	if set == nil {
		return fmt.Errorf("%w: nil set", ErrInvalidEmbeddingSet)
	}
	if len(set.Matrix) != len(set.Alignment) {
		return fmt.Errorf("%w: %d vectors but %d alignment entries", ErrInvalidEmbeddingSet, len(set.Matrix), len(set.Alignment))
	}
	if len(set.Matrix) == 0 {
		return nil
	}
	dims := len(set.Matrix[0])
	if dims == 0 {
		return fmt.Errorf("%w: zero-dimension vectors", ErrInvalidEmbeddingSet)
	}
	for i, row := range set.Matrix {
		if len(row) != dims {
			return fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrInvalidEmbeddingSet, i, len(row), dims)
		}
	}
	return nil
}

// MarshalMatrix serializes the matrix of a set together with its model header.
// The alignment is stored separately, see MarshalAlignment.
func MarshalMatrix(set *core.EmbeddingSet) ([]byte, error) {
	if set == nil {
		return nil, fmt.Errorf("%w: nil set", ErrInvalidEmbeddingSet)
	}
	rows := len(set.Matrix)
	dims := 0
	if rows > 0 {
		dims = len(set.Matrix[0])
	}
	for i, row := range set.Matrix {
		if len(row) != dims {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrInvalidEmbeddingSet, i, len(row), dims)
		}
	}
	created := set.CreatedAt.UnixNano()

	size := ord.String.Size(matrixMagic) +
		ord.String.Size(set.Model) +
		ord.String.Size(set.Device) +
		varint.Int64.Size(created) +
		varint.Int.Size(rows) +
		varint.Int.Size(dims) +
		rows*dims*raw.Float32.Size(0)

	buf := make([]byte, size)
	n := ord.String.Marshal(matrixMagic, buf)
	n += ord.String.Marshal(set.Model, buf[n:])
	n += ord.String.Marshal(set.Device, buf[n:])
	n += varint.Int64.Marshal(created, buf[n:])
	n += varint.Int.Marshal(rows, buf[n:])
	n += varint.Int.Marshal(dims, buf[n:])
	for _, row := range set.Matrix {
		for _, v := range row {
			n += raw.Float32.Marshal(v, buf[n:])
		}
	}
	return buf[:n], nil
}

// UnmarshalMatrix deserializes a blob written by MarshalMatrix.
// The returned set has a nil Alignment.
func UnmarshalMatrix(data []byte) (*core.EmbeddingSet, error) {
	magic, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, corrupt("header", err)
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrCorruptData, magic)
	}
	off := n

	model, n, err := ord.String.Unmarshal(data[off:])
	if err != nil {
		return nil, corrupt("model", err)
	}
	off += n

	device, n, err := ord.String.Unmarshal(data[off:])
	if err != nil {
		return nil, corrupt("device", err)
	}
	off += n

	created, n, err := varint.Int64.Unmarshal(data[off:])
	if err != nil {
		return nil, corrupt("timestamp", err)
	}
	off += n

	rows, n, err := varint.Int.Unmarshal(data[off:])
	if err != nil {
		return nil, corrupt("row count", err)
	}
	off += n

	dims, n, err := varint.Int.Unmarshal(data[off:])
	if err != nil {
		return nil, corrupt("dimensions", err)
	}
	off += n

	if rows < 0 || dims < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", ErrCorruptData, rows, dims)
	}
	if rows > 0 && dims == 0 {
		return nil, fmt.Errorf("%w: %d rows with zero dimensions", ErrCorruptData, rows)
	}
	payload := len(data) - off
	rowBytes := dims * raw.Float32.Size(0)
	if rows > 0 && (dims > payload || rows > payload/rowBytes) {
		return nil, fmt.Errorf("%w: %w: shape %dx%d exceeds %d payload bytes", ErrCorruptData, ErrTruncatedData, rows, dims, payload)
	}
	if want := rows * rowBytes; payload != want {
		return nil, fmt.Errorf("%w: %w: want %d payload bytes, have %d", ErrCorruptData, ErrTruncatedData, want, payload)
	}

	matrix := make([][]float32, rows)
	for i := range matrix {
		row := make([]float32, dims)
		for j := range row {
			row[j], n, err = raw.Float32.Unmarshal(data[off:])
			if err != nil {
				return nil, corrupt("vector", err)
			}
			off += n
		}
		matrix[i] = row
	}

	return &core.EmbeddingSet{
		Matrix:     matrix,
		Model:      model,
		Device:     device,
		Dimensions: dims,
		CreatedAt:  time.Unix(0, created).UTC(),
	}, nil
}

// MarshalAlignment serializes an alignment index.
func MarshalAlignment(alignment []int) []byte {
	size := varint.Int.Size(len(alignment))
	for _, v := range alignment {
		size += varint.Int.Size(v)
	}
	buf := make([]byte, size)
	n := varint.Int.Marshal(len(alignment), buf)
	for _, v := range alignment {
		n += varint.Int.Marshal(v, buf[n:])
	}
	return buf[:n]
}

// UnmarshalAlignment deserializes an alignment index.
func UnmarshalAlignment(data []byte) ([]int, error) {
	count, off, err := varint.Int.Unmarshal(data)
	if err != nil {
		return nil, corrupt("alignment count", err)
	}
	if count < 0 || count > len(data) {
		return nil, fmt.Errorf("%w: alignment count %d", ErrCorruptData, count)
	}
	out := make([]int, count)
	for i := range out {
		v, n, err := varint.Int.Unmarshal(data[off:])
		if err != nil {
			return nil, corrupt("alignment entry", err)
		}
		out[i] = v
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after alignment", ErrCorruptData, len(data)-off)
	}
	return out, nil
}

func corrupt(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorruptData, field, err)
}
