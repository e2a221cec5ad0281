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

package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadLines(t *testing.T) {
	name := filepath.Join(t.TempDir(), "lines")
	lines := []string{"a\tb", "", "c"}
	require.NoError(t, WriteLines(name, lines))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n\nc\n", string(data))

	read, err := ReadLines(name)
	require.NoError(t, err)
	assert.Equal(t, lines, read)
}

func TestReadLinesWithoutFinalNewline(t *testing.T) {
	name := filepath.Join(t.TempDir(), "lines")
	require.NoError(t, os.WriteFile(name, []byte("x\ny"), 0o644))
	read, err := ReadLines(name)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, read)

	_, err = ReadLines(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseAll(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	assert.NoError(t, CloseAll(failingCloser{}, nil, failingCloser{}))
	err := CloseAll(failingCloser{first}, nil, failingCloser{second})
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	var result error
	Close(failingCloser{first}, &result)
	assert.ErrorIs(t, result, first)
}

func TestByteBuffer(t *testing.T) {
	buf := ReserveByteBuffer()
	assert.Empty(t, buf)
	buf = append(buf, "some text"...)
	ReleaseByteBuffer(buf)
	assert.Empty(t, ReserveByteBuffer())
}
