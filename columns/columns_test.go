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

package columns

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/bamdiff/internal/tool"
)

func TestProject(t *testing.T) {
	line := "a\tb\tc\td\te\tf"
	for spec, expected := range map[string]string{
		"1,2,5":  "a\tb\te",
		"1-3":    "a\tb\tc",
		"5,1":    "a\te",
		"4-":     "d\te\tf",
		"-2":     "a\tb",
		"2,2,1":  "a\tb",
		"7":      "",
		"6-9":    "f",
		"1-3,2-": "a\tb\tc\td\te\tf",
	} {
		s, err := Parse(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, expected, s.Project(line), spec)
	}
}

func TestProjectWithoutTabs(t *testing.T) {
	s, err := Parse("2")
	require.NoError(t, err)
	assert.Equal(t, "@CO free text", s.Project("@CO free text"))
	assert.Equal(t, "", s.Project(""))
}

func TestProjectKeepsEmptyFields(t *testing.T) {
	s, err := Parse("1,3")
	require.NoError(t, err)
	assert.Equal(t, "a\t", s.Project("a\tb\t\td"))
}

func TestParseErrors(t *testing.T) {
	for _, spec := range []string{"", "1,,2", "0", "x", "3-1", "-", "1-x", "1.5", "-3-5"} {
		_, err := Parse(spec)
		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr, spec)
		assert.Equal(t, spec, cerr.Spec)
	}
}

func TestConstants(t *testing.T) {
	invariant, err := Parse(Invariant)
	require.NoError(t, err)
	mandatory, err := Parse(Mandatory)
	require.NoError(t, err)
	line := "q\t99\tchr1\t7\t30\t4M\t=\t37\t39\tACGT\tIIII\tNM:i:0"
	assert.Equal(t, "q\t99\t30\tACGT\tIIII", invariant.Project(line))
	assert.Equal(t, "q\t99\tchr1\t7\t30\t4M\t=\t37\t39\tACGT\tIIII", mandatory.Project(line))
	assert.Equal(t, Invariant, invariant.String())
}

func TestProjectFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	output := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(input, []byte("a\tb\tc\n@HD\tVN:1.6\nplain\nx\ty\tz"), 0o644))
	s, err := Parse("1,3")
	require.NoError(t, err)
	require.NoError(t, ProjectFile(context.Background(), input, output, s))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "a\tc\n@HD\nplain\nx\tz\n", string(data))
}

func TestProjectFileMatchesCut(t *testing.T) {
	if !tool.Available("cut") {
		t.Skip("cut not available")
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte(
		"q1\t99\tchr1\t7\t30\t4M\t=\t37\t39\tACGT\tIIII\tNM:i:0\n"+
			"@PG\tID:x\n"+
			"no tabs here\n"+
			"q2\t0\t*\t0\t0\t*\t*\t0\t0\tA\tI\n"), 0o644))
	for _, spec := range []string{Invariant, Mandatory, "2-", "-3"} {
		s, err := Parse(spec)
		require.NoError(t, err)
		projected := filepath.Join(dir, "projected")
		cut := filepath.Join(dir, "cut")
		require.NoError(t, ProjectFile(context.Background(), input, projected, s))
		require.NoError(t, CutFile(context.Background(), input, cut, s))
		p, err := os.ReadFile(projected)
		require.NoError(t, err)
		c, err := os.ReadFile(cut)
		require.NoError(t, err)
		assert.Equal(t, string(c), string(p), spec)
	}
}
