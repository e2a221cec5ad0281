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

	"github.com/exascience/bamdiff/columns"
)

func cutCommand() *cli.Command {
	return &cli.Command{
		Name:      "cut",
		Usage:     "select tab-separated columns from a text file",
		ArgsUsage: "INPUT OUTPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "fields",
				Aliases:  []string{"f"},
				Usage:    "columns to keep, such as 1,2,5 or 1-11",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "external",
				Usage:   "run the cut tool",
				EnvVars: envVars("external-cut"),
			},
		},
		Action: runCut,
	}
}

func runCut(c *cli.Context) error {
	input, output, err := twoArgs(c, "INPUT", "OUTPUT")
	if err != nil {
		return err
	}
	if err := checkExist(input); err != nil {
		return err
	}
	spec, err := columns.Parse(c.String("fields"))
	if err != nil {
		return err
	}
	project := columns.ProjectFile
	if c.Bool("external") {
		project = columns.CutFile
	}
	return project(c.Context, input, output, spec)
}
