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

package convert

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/bamdiff/internal/samtest"
	"github.com/exascience/bamdiff/internal/tool"
)

var header = []string{
	"@HD\tVN:1.6\tSO:unsorted",
	"@SQ\tSN:chr2\tLN:5000",
	"@SQ\tSN:chr1\tLN:5000",
	"@RG\tID:UNSET-7c1e2f\tSM:s1",
	"@PG\tID:aligner\tPN:aligner",
}

var records = []string{
	"q1\t99\tchr1\t100\t60\t4M\t=\t200\t104\tACGT\tIIII\tRG:Z:UNSET-7c1e2f",
	"q1\t147\tchr1\t200\t60\t4M\t=\t100\t-104\tACGT\tIIII\tRG:Z:UNSET-7c1e2f",
	"q2\t0\tchr1\t9\t5\t4M\t*\t0\t0\tACGA\tIIII\tRG:Z:UNSET-7c1e2f",
	"q3\t16\tchr2\t9\t30\t4M\t*\t0\t0\tTTGA\tIIII\tRG:Z:UNSET-7c1e2f",
	"q4\t256\tchr1\t100\t0\t4M\t*\t0\t0\tACGT\tIIII\tRG:Z:UNSET-7c1e2f",
	"q0\t4\t*\t0\t0\t*\t*\t0\t0\tNNNN\t!!!!\tRG:Z:UNSET-7c1e2f",
}

func shuffled(lines []string, seed int64) []string {
	result := append([]string(nil), lines...)
	rand.New(rand.NewSource(seed)).Shuffle(len(result), func(i, j int) {
		result[i], result[j] = result[j], result[i]
	})
	return result
}

func writeBam(t *testing.T, name string, recs []string) string {
	path := filepath.Join(t.TempDir(), name)
	samtest.Write(t, path, samtest.Lines(append(append([]string(nil), header...), recs...)...))
	return path
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "RG:Z:UNSET-placeholder", Normalize("RG:Z:UNSET-3f2a9c"))
	assert.Equal(t, "ID:UNSET-placeholder\tSM:x", Normalize("ID:UNSET-1\tSM:x"))
	assert.Equal(t, "RG:Z:UNSET-placeholder", Normalize(Normalize("RG:Z:UNSET-placeholder")))
	assert.Equal(t, "a:UNSET-placeholder b:UNSET-placeholder", Normalize("a:UNSET-x b:UNSET-y_2"))
	assert.Equal(t, "RG:Z:UNSET-\tX", Normalize("RG:Z:UNSET-\tX"))
	assert.Equal(t, "RG:Z:grp1", Normalize("RG:Z:grp1"))
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines(""))
	assert.Nil(t, Lines(" \n\t\n"))
	assert.Equal(t, []string{"a", "b\tc"}, Lines("a\nb\tc\n\n  "))
	assert.Equal(t, []string{"a", "", "b"}, Lines("a\n\nb"))
}

func TestParseSorting(t *testing.T) {
	for name, expected := range map[string]Sorting{
		"":           None,
		"none":       None,
		"COORDINATE": Coordinate,
		"name":       Name,
		"queryname":  Name,
	} {
		s, err := ParseSorting(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, s, name)
	}
	_, err := ParseSorting("random")
	assert.Error(t, err)
	assert.Equal(t, "coordinate", Coordinate.String())
}

func TestNumericValue(t *testing.T) {
	assert.Equal(t, 100.0, numericValue("100"))
	assert.Equal(t, -3.0, numericValue("-3x"))
	assert.Equal(t, 0.0, numericValue("*"))
	assert.Equal(t, 0.0, numericValue(""))
	assert.Equal(t, 1.5, numericValue(" 1.5"))
	assert.Equal(t, "chr1", field("a\t1\tchr1\t5", 3))
	assert.Equal(t, "", field("a\t1", 3))
}

func TestNativeSorterCoordinate(t *testing.T) {
	lines := []string{
		"b\t16\tchr1\t100\tx",
		"a\t0\tchr1\t100\tx",
		"c\t0\tchr1\t9\tx",
		"d\t4\t*\t0\tx",
		"a\t0\tchr10\t1\tx",
	}
	input := append([]string(nil), lines...)
	sorted, err := NativeSorter{}.Sort(context.Background(), lines, Coordinate)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"d\t4\t*\t0\tx",
		"c\t0\tchr1\t9\tx",
		"a\t0\tchr1\t100\tx",
		"b\t16\tchr1\t100\tx",
		"a\t0\tchr10\t1\tx",
	}, sorted)
	assert.Equal(t, input, lines)
}

func TestNativeSorterName(t *testing.T) {
	lines := []string{
		"q2\t0\tchr1\t1",
		"q1\t147\tchr1\t200",
		"q1\t99\tchr1\t100",
		"q1\t99\tchr1\t50",
	}
	sorted, err := NativeSorter{}.Sort(context.Background(), lines, Name)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"q1\t99\tchr1\t100",
		"q1\t99\tchr1\t50",
		"q1\t147\tchr1\t200",
		"q2\t0\tchr1\t1",
	}, sorted)
}

func TestNativeSorterIndependentOfInputOrder(t *testing.T) {
	var lines []string
	for i := 0; i < 5000; i++ {
		lines = append(lines, strings.Join([]string{
			"r" + string(rune('a'+i%26)),
			[]string{"0", "16", "256"}[i%3],
			[]string{"chr1", "chr2", "*"}[i%3],
			[]string{"1", "10", "2"}[i%7%3],
			"x" + string(rune('a'+i%5)),
		}, "\t"))
	}
	expected, err := NativeSorter{}.Sort(context.Background(), lines, Coordinate)
	require.NoError(t, err)
	for seed := int64(1); seed <= 3; seed++ {
		sorted, err := NativeSorter{}.Sort(context.Background(), shuffled(lines, seed), Coordinate)
		require.NoError(t, err)
		assert.Equal(t, expected, sorted)
	}
}

func TestExternalSorterMatchesNativeSorter(t *testing.T) {
	if !tool.Available("sort") {
		t.Skip("sort not available")
	}
	lines := shuffled(records, 7)
	for _, sorting := range []Sorting{Coordinate, Name} {
		native, err := NativeSorter{}.Sort(context.Background(), lines, sorting)
		require.NoError(t, err)
		external, err := (&ExternalSorter{Dir: t.TempDir()}).Sort(context.Background(), lines, sorting)
		require.NoError(t, err)
		assert.Equal(t, native, external, sorting.String())
	}
}

func TestExternalSorterFailure(t *testing.T) {
	_, err := (&ExternalSorter{Path: "bamdiff-no-such-sort", Dir: t.TempDir()}).
		Sort(context.Background(), []string{"a"}, Name)
	var ierr *tool.InvocationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "bamdiff-no-such-sort", ierr.Command)
}

func TestConvertHeadersAndOrder(t *testing.T) {
	input := writeBam(t, "in.bam", shuffled(records, 3))
	output := filepath.Join(t.TempDir(), "out.sam")
	require.NoError(t, Convert(context.Background(), input, output, Options{
		Headers: true,
		Sorting: Coordinate,
	}))
	lines := strings.Split(samtest.ReadFile(t, output), "\n")
	require.Equal(t, "", lines[len(lines)-1])
	lines = lines[:len(lines)-1]
	require.Len(t, lines, len(header)+len(records))
	for i, h := range header {
		assert.Equal(t, Normalize(h), lines[i])
	}
	assert.Equal(t, "@RG\tID:UNSET-placeholder\tSM:s1", lines[3])
	body := lines[len(header):]
	assert.True(t, strings.HasPrefix(body[0], "q0\t4\t*\t"))
	assert.True(t, strings.HasPrefix(body[1], "q2\t0\tchr1\t9\t"))
	for _, line := range body {
		assert.True(t, strings.HasSuffix(line, "RG:Z:UNSET-placeholder"), line)
	}
}

func TestConvertIndependentOfReadOrder(t *testing.T) {
	dir := t.TempDir()
	var outputs []string
	for seed := int64(1); seed <= 3; seed++ {
		input := writeBam(t, "in.bam", shuffled(records, seed))
		output := filepath.Join(dir, "out"+string(rune('0'+seed)))
		require.NoError(t, Convert(context.Background(), input, output, Options{Sorting: Name}))
		outputs = append(outputs, samtest.ReadFile(t, output))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
	assert.False(t, strings.HasPrefix(outputs[0], "@"))
}

func TestConvertIdempotent(t *testing.T) {
	input := writeBam(t, "in.bam", records)
	dir := t.TempDir()
	once := filepath.Join(dir, "once.sam")
	twice := filepath.Join(dir, "twice.sam")
	opts := Options{Headers: true, Sorting: Coordinate}
	require.NoError(t, Convert(context.Background(), input, once, opts))
	require.NoError(t, Convert(context.Background(), once, twice, opts))
	assert.Equal(t, samtest.ReadFile(t, once), samtest.ReadFile(t, twice))
}

func TestConvertMinMapQ(t *testing.T) {
	input := writeBam(t, "in.bam", records)
	output := filepath.Join(t.TempDir(), "out.sam")
	require.NoError(t, Convert(context.Background(), input, output, Options{MinMapQ: 30}))
	text := samtest.ReadFile(t, output)
	assert.Equal(t, 3, strings.Count(text, "\n"))
	assert.NotContains(t, text, "q2\t")
	assert.NotContains(t, text, "q0\t")
}

func TestConvertEmpty(t *testing.T) {
	input := writeBam(t, "in.bam", nil)
	output := filepath.Join(t.TempDir(), "out.sam")
	require.NoError(t, Convert(context.Background(), input, output, Options{Sorting: Coordinate}))
	assert.Equal(t, "", samtest.ReadFile(t, output))
}

func TestConvertMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := Convert(context.Background(), filepath.Join(dir, "missing.bam"), filepath.Join(dir, "out"), Options{})
	assert.Error(t, err)
}

func TestConvertExternalSorter(t *testing.T) {
	if !tool.Available("sort") {
		t.Skip("sort not available")
	}
	input := writeBam(t, "in.bam", shuffled(records, 5))
	dir := t.TempDir()
	native := filepath.Join(dir, "native.sam")
	external := filepath.Join(dir, "external.sam")
	require.NoError(t, Convert(context.Background(), input, native, Options{Headers: true, Sorting: Coordinate}))
	require.NoError(t, Convert(context.Background(), input, external, Options{
		Headers: true,
		Sorting: Coordinate,
		Sorter:  &ExternalSorter{},
		TempDir: dir,
	}))
	assert.Equal(t, samtest.ReadFile(t, native), samtest.ReadFile(t, external))
}

func TestBiogoViewer(t *testing.T) {
	input := writeBam(t, "in.bam", records)
	var native, biogo bytes.Buffer
	require.NoError(t, NativeViewer{}.View(context.Background(), input, false, 10, &native))
	require.NoError(t, BiogoViewer{Concurrency: 1}.View(context.Background(), input, false, 10, &biogo))
	nativeLines := Lines(native.String())
	biogoLines := Lines(biogo.String())
	require.Len(t, biogoLines, len(nativeLines))
	for i := range nativeLines {
		for _, n := range []int{1, 2, 3, 4, 5, 6} {
			assert.Equal(t, field(nativeLines[i], n), field(biogoLines[i], n))
		}
	}
}

func TestSamtoolsViewer(t *testing.T) {
	if !tool.Available("samtools") {
		t.Skip("samtools not available")
	}
	input := writeBam(t, "in.bam", records)
	var native, samtools bytes.Buffer
	require.NoError(t, NativeViewer{}.View(context.Background(), input, false, 20, &native))
	require.NoError(t, SamtoolsViewer{}.View(context.Background(), input, false, 20, &samtools))
	assert.Equal(t, native.String(), samtools.String())
}

func TestViewerRegistry(t *testing.T) {
	assert.Equal(t, []string{"biogo", "native", "samtools"}, ViewerNames())
	v, err := LookupViewer("native")
	require.NoError(t, err)
	assert.IsType(t, NativeViewer{}, v)
	_, err = LookupViewer("picard")
	assert.Error(t, err)
}
