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

// bamdiff compares alignment files produced by two runs of a pipeline,
// tolerating differences in read order, randomly assigned read group
// identifiers and, optionally, optional fields and low quality reads.
//
// Exit status is 0 if the files are equal, 1 if they are not, and 2 if
// the comparison could not be carried out.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.App().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logrus.Error(err)
	}
	os.Exit(cmd.ExitCode(err))
}
