// bamdiff: approximate comparison of SAM/BAM files.
// Copyright (c) 2026 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/bamdiff/blob/master/LICENSE.txt>.

package bgzf

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf, flate.DefaultCompression)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decompress(t *testing.T, data []byte) []byte {
	r, err := NewReader(bufio.NewReader(bytes.NewReader(data)))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return out
}

func TestRoundTripSmall(t *testing.T) {
	data := []byte("@HD\tVN:1.6\nr1\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\n")
	assert.Equal(t, data, decompress(t, compress(t, data)))
}

func TestRoundTripManyBlocks(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	data := make([]byte, 5*maxPayload+123)
	for i := range data {
		data[i] = "ACGT\t\n"[rnd.Intn(6)]
	}
	assert.Equal(t, data, decompress(t, compress(t, data)))
}

func TestRoundTripEmpty(t *testing.T) {
	compressed := compress(t, nil)
	assert.Equal(t, eofMarker, compressed)
	assert.Empty(t, decompress(t, compressed))
}

func TestMissingEOFMarker(t *testing.T) {
	compressed := compress(t, []byte("some data\n"))
	truncated := compressed[:len(compressed)-len(eofMarker)]
	r, err := NewReader(bufio.NewReader(bytes.NewReader(truncated)))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Error(t, err)
	_ = r.Close()
}

func TestDetect(t *testing.T) {
	kind, err := Detect(bufio.NewReader(bytes.NewReader(compress(t, []byte("x")))))
	require.NoError(t, err)
	assert.Equal(t, BGZF, kind)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte("plain gzip"))
	require.NoError(t, zw.Close())
	kind, err = Detect(bufio.NewReader(&gz))
	require.NoError(t, err)
	assert.Equal(t, Gzip, kind)

	kind, err = Detect(bufio.NewReader(bytes.NewReader([]byte("@HD\n"))))
	require.NoError(t, err)
	assert.Equal(t, Plain, kind)

	_, err = Detect(bufio.NewReader(bytes.NewReader(nil)))
	assert.Equal(t, io.EOF, err)
}
