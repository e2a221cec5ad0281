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

import "regexp"

// Placeholder replaces identifiers that are assigned randomly per run.
const Placeholder = "UNSET-placeholder"

var unsetIdentifier = regexp.MustCompile(`UNSET-\w*\b`)

// Normalize masks randomly assigned read group identifiers such as
// UNSET-3f2a9c by replacing them with Placeholder. Normalize is
// idempotent.
func Normalize(line string) string {
	return unsetIdentifier.ReplaceAllLiteralString(line, Placeholder)
}
