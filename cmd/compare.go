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

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/exascience/bamdiff/columns"
	"github.com/exascience/bamdiff/compare"
	"github.com/exascience/bamdiff/convert"
	"github.com/exascience/bamdiff/internal/tempdir"
)

func sideFlags(side string) []cli.Flag {
	suffix, usage := "", "both files"
	if side != "" {
		suffix, usage = "-"+side, "file "+side
	}
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "allowed-diff-lines" + suffix,
			Usage:   "number of lines each pass tolerates to differ, requested for " + usage,
			EnvVars: envVars("allowed-diff-lines" + suffix),
		},
		&cli.IntFlag{
			Name:    "min-mapq" + suffix,
			Usage:   "mapping quality below which reads are left out of the full-columns pass, requested for " + usage,
			EnvVars: envVars("min-mapq" + suffix),
		},
		&cli.BoolFlag{
			Name:    "compare-tag-columns" + suffix,
			Usage:   "also compare optional fields in the full-columns pass, requested for " + usage,
			EnvVars: envVars("compare-tag-columns" + suffix),
		},
	}
}

func sideOptions(c *cli.Context, side string) compare.Options {
	suffix := ""
	if side != "" {
		suffix = "-" + side
	}
	return compare.Options{
		AllowedDiffLines:  c.Int("allowed-diff-lines" + suffix),
		MinMapQ:           c.Int("min-mapq" + suffix),
		CompareTagColumns: c.Bool("compare-tag-columns" + suffix),
	}
}

var conversionFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "viewer",
		Value:   "native",
		Usage:   "alignment decoder: native, samtools or biogo",
		EnvVars: envVars("viewer"),
	},
	&cli.BoolFlag{
		Name:    "external-sort",
		Usage:   "sort lines with the sort tool instead of in memory",
		EnvVars: envVars("external-sort"),
	},
	&cli.StringFlag{
		Name:    "tmp-dir",
		Usage:   "parent `DIR` of the scratch directory",
		EnvVars: envVars("tmp-dir"),
	},
}

func conversionSetup(c *cli.Context) (convert.Viewer, convert.LineSorter, error) {
	viewer, err := convert.LookupViewer(c.String("viewer"))
	if err != nil {
		return nil, nil, err
	}
	var sorter convert.LineSorter = convert.NativeSorter{}
	if c.Bool("external-sort") {
		sorter = &convert.ExternalSorter{Dir: c.String("tmp-dir")}
	}
	return viewer, sorter, nil
}

func compareCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "type",
			Value:   "bam",
			Usage:   "file type, one of the registered comparators",
			EnvVars: envVars("type"),
		},
		&cli.BoolFlag{
			Name:    "external-cut",
			Usage:   "select columns with the cut tool",
			EnvVars: envVars("external-cut"),
		},
		&cli.BoolFlag{
			Name:    "keep-temp",
			Usage:   "keep the scratch directory even if the files are equal",
			EnvVars: envVars("keep-temp"),
		},
	}
	flags = append(flags, conversionFlags...)
	flags = append(flags, sideFlags("")...)
	flags = append(flags, sideFlags("1")...)
	flags = append(flags, sideFlags("2")...)

	return &cli.Command{
		Name:      "compare",
		Usage:     "check that two files are equal up to expected differences",
		ArgsUsage: "FILE1 FILE2",
		Flags:     flags,
		Action:    runCompare,
	}
}

func runCompare(c *cli.Context) error {
	file1, file2, err := twoArgs(c, "FILE1", "FILE2")
	if err != nil {
		return err
	}
	for _, f := range []string{file1, file2} {
		if err := checkExist(f); err != nil {
			return err
		}
	}
	common := sideOptions(c, "")
	opts := compare.Resolve(compare.Resolve(common, sideOptions(c, "1")), sideOptions(c, "2"))
	if err := opts.Validate(); err != nil {
		return err
	}

	policy := tempdir.CleanupOnSuccess
	if c.Bool("keep-temp") {
		policy = tempdir.Retain
	}
	logger := logrus.StandardLogger()

	registered, err := compare.Lookup(c.String("type"))
	if err != nil {
		return err
	}
	comparator := registered
	switch r := registered.(type) {
	case *compare.BamComparator:
		viewer, sorter, err := conversionSetup(c)
		if err != nil {
			return err
		}
		configured := *r
		configured.Viewer = viewer
		configured.Sorter = sorter
		configured.TempRoot = c.String("tmp-dir")
		configured.Cleanup = policy
		configured.Logger = logger
		if c.Bool("external-cut") {
			configured.Project = columns.CutFile
		}
		comparator = &configured
	case *compare.TextComparator:
		configured := *r
		configured.TempRoot = c.String("tmp-dir")
		configured.Cleanup = policy
		configured.Logger = logger
		comparator = &configured
	}

	logger.WithFields(logrus.Fields{
		"type":              c.String("type"),
		"allowedDiffLines":  opts.AllowedDiffLines,
		"minMapQ":           opts.MinMapQ,
		"compareTagColumns": opts.CompareTagColumns,
	}).Debug("comparing files")
	if err := comparator.AssertEqual(c.Context, file1, file2, opts); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"file1": file1, "file2": file2}).Info("files are equal")
	return nil
}
