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
	"github.com/urfave/cli/v2"

	"github.com/exascience/bamdiff/convert"
)

func viewCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "headers",
			Usage:   "include header lines",
			EnvVars: envVars("headers"),
		},
		&cli.IntFlag{
			Name:    "min-mapq",
			Usage:   "leave out reads with a lower mapping quality",
			EnvVars: envVars("min-mapq"),
		},
		&cli.StringFlag{
			Name:    "sort",
			Value:   "none",
			Usage:   "order of alignment lines: none, coordinate or name",
			EnvVars: envVars("sort"),
		},
	}
	flags = append(flags, conversionFlags...)
	return &cli.Command{
		Name:      "view",
		Aliases:   []string{"convert"},
		Usage:     "convert an alignment file to canonical SAM text",
		ArgsUsage: "INPUT OUTPUT",
		Flags:     flags,
		Action:    runView,
	}
}

func runView(c *cli.Context) error {
	input, output, err := twoArgs(c, "INPUT", "OUTPUT")
	if err != nil {
		return err
	}
	if err := checkExist(input); err != nil {
		return err
	}
	sorting, err := convert.ParseSorting(c.String("sort"))
	if err != nil {
		return err
	}
	viewer, sorter, err := conversionSetup(c)
	if err != nil {
		return err
	}
	return convert.Convert(c.Context, input, output, convert.Options{
		Headers: c.Bool("headers"),
		MinMapQ: c.Int("min-mapq"),
		Sorting: sorting,
		Viewer:  viewer,
		Sorter:  sorter,
		TempDir: c.String("tmp-dir"),
	})
}
