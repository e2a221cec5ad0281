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

// Package samtest builds SAM and BAM fixture files for tests.
package samtest

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/bamdiff/sam"
)

// Split separates SAM text into header lines and alignment lines,
// dropping empty lines.
func Split(text string) (header, records []string) {
	for _, line := range strings.Split(text, "\n") {
		switch {
		case line == "":
		case sam.IsHeaderLine(line):
			header = append(header, line)
		default:
			records = append(records, line)
		}
	}
	return header, records
}

// Write writes SAM text to path, as BAM if path ends in .bam and as
// SAM otherwise.
func Write(t testing.TB, path, text string) {
	t.Helper()
	header, records := Split(text)
	out, err := sam.Create(path, &sam.Header{Lines: header})
	require.NoError(t, err)
	for _, line := range records {
		aln, err := sam.ParseAlignmentLine(line)
		require.NoError(t, err)
		require.NoError(t, out.Write(aln))
	}
	require.NoError(t, out.Close())
}

// Read reads a SAM or BAM file back into canonical SAM text.
func Read(t testing.TB, path string) string {
	t.Helper()
	in, err := sam.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, in.Close()) }()
	var b strings.Builder
	b.Write(in.Header.Format(nil))
	for {
		aln, err := in.Read()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		line, err := aln.Format(nil)
		require.NoError(t, err)
		b.Write(line)
	}
	return b.String()
}

// ReadFile returns the contents of path as a string.
func ReadFile(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// Lines joins lines with newline terminators.
func Lines(lines ...string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
