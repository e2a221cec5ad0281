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

package utils

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/bamdiff/utils/bgzf"
)

func TestIntern(t *testing.T) {
	a := Intern("RG")
	b := Intern(string([]byte{'R', 'G'}))
	assert.True(t, a == b)
	assert.False(t, a == Intern("NM"))
	assert.Equal(t, "RG", *a)
}

func TestSmallMapKeepsOrder(t *testing.T) {
	var m SmallMap
	m.Set(Intern("NM"), int64(1))
	m.Set(Intern("AS"), int64(2))
	m.Set(Intern("NM"), int64(3))
	require.Len(t, m, 2)
	assert.Equal(t, SmallMapEntry{Intern("NM"), int64(3)}, m[0])
	assert.Equal(t, SmallMapEntry{Intern("AS"), int64(2)}, m[1])
}

func readText(t *testing.T, name string) string {
	r, err := OpenText(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestOpenText(t *testing.T) {
	dir := t.TempDir()
	const text = "line 1\nline 2\n"

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte(text), 0o644))
	assert.Equal(t, text, readText(t, plain))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Equal(t, "", readText(t, empty))

	gz := filepath.Join(dir, "text.gz")
	f, err := os.Create(gz)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, text, readText(t, gz))

	bgz := filepath.Join(dir, "text.bgz")
	f, err = os.Create(bgz)
	require.NoError(t, err)
	bw := bgzf.NewWriter(f, flate.DefaultCompression)
	_, err = bw.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, text, readText(t, bgz))

	_, err = OpenText(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
