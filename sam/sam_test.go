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

package sam_test

import (
	"bytes"
	"compress/flate"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/bamdiff/internal/samtest"
	"github.com/exascience/bamdiff/sam"
	"github.com/exascience/bamdiff/utils/bgzf"
)

var fixture = samtest.Lines(
	"@HD\tVN:1.6\tSO:coordinate",
	"@SQ\tSN:chr1\tLN:10000",
	"@SQ\tSN:chr2\tLN:20000",
	"@RG\tID:UNSET-1a2b3c\tSM:sample",
	"@PG\tID:bwa\tPN:bwa\tCL:bwa mem ref.fa r1.fq r2.fq",
	"@CO\tfree text comment",
	"r001\t99\tchr1\t7\t30\t8M2I4M1D3M\t=\t37\t39\tTTAGATAAAGGATACTG\t*\tRG:Z:UNSET-1a2b3c\tNM:i:3",
	"r002\t0\tchr1\t9\t30\t3S6M1P1I4M\t*\t0\t0\tAAAAGATAAGGATA\tIIIIIIIIIIIIII\tXA:A:x\tXF:f:1.5\tXN:i:-70000",
	"r003\t2064\tchr2\t29\t17\t6H5M\tchr1\t7\t0\tTAGGC\t#####\tXB:B:s,1,-2,300\tXH:H:1AE3\tXC:B:C,0,255",
	"r004\t4\t*\t0\t0\t*\t*\t0\t0\tNNNN\t!!!!\tXI:B:f,0.25,-1",
	"r005\t16\tchr2\t100\t60\t4M\t=\t1\t-103\tacgt\t*\tXP:i:4294967295",
)

func TestBamRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.bam")
	samtest.Write(t, path, fixture)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0x1f, 0x8b}))

	expected := bytes.Replace([]byte(fixture), []byte("acgt"), []byte("ACGT"), 1)
	assert.Equal(t, string(expected), samtest.Read(t, path))
}

func TestSamRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.sam")
	samtest.Write(t, path, fixture)
	assert.Equal(t, fixture, samtest.ReadFile(t, path))
	assert.Equal(t, fixture, samtest.Read(t, path))
}

func TestOpenIgnoresExtension(t *testing.T) {
	dir := t.TempDir()
	bam := filepath.Join(dir, "fixture.bam")
	samtest.Write(t, bam, fixture)
	renamed := filepath.Join(dir, "output_file")
	require.NoError(t, os.Rename(bam, renamed))
	in, err := sam.Open(renamed)
	require.NoError(t, err)
	defer in.Close()
	assert.Len(t, in.Header.References, 2)
	assert.Equal(t, sam.Reference{Name: "chr2", Length: 20000}, in.Header.References[1])
}

func TestOpenBgzippedSam(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.sam.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, flate.BestSpeed)
	_, err = w.Write([]byte(fixture))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, fixture, samtest.Read(t, path))
}

func TestHeaderOrderPreserved(t *testing.T) {
	text := samtest.Lines(
		"@HD\tVN:1.6",
		"@PG\tID:z",
		"@SQ\tSN:chrB\tLN:5",
		"@CO\tbetween",
		"@SQ\tSN:chrA\tLN:7",
	)
	path := filepath.Join(t.TempDir(), "order.bam")
	samtest.Write(t, path, text)
	assert.Equal(t, text, samtest.Read(t, path))
}

func TestParseAlignmentLineErrors(t *testing.T) {
	for _, line := range []string{
		"r1\t0\tchr1",
		"r1\tx\tchr1\t1\t0\t*\t*\t0\t0\tA\tI",
		"r1\t0\tchr1\t1\t0\t*\t*\t0\t0\tA\tI\tXX:Q:1",
		"r1\t0\tchr1\t1\t0\t*\t*\t0\t0\tA\tI\tXXX:i:1",
	} {
		_, err := sam.ParseAlignmentLine(line)
		assert.Error(t, err, line)
	}
}

func TestScanCigarString(t *testing.T) {
	ops, err := sam.ScanCigarString("3S6m1I")
	require.NoError(t, err)
	assert.Equal(t, []sam.CigarOperation{{3, 'S'}, {6, 'M'}, {1, 'I'}}, ops)
	_, err = sam.ScanCigarString("3Q")
	assert.Error(t, err)
	_, err = sam.ScanCigarString("12")
	assert.Error(t, err)
}

func TestParseReferencesRequiresLength(t *testing.T) {
	_, err := sam.ParseReferences([]string{"@SQ\tSN:chr1"})
	assert.Error(t, err)
}
