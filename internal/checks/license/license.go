// Package license implements the license check (spec §4.17): scans each
// matching file for an SPDX-License-Identifier line and a copyright line,
// and builds a --fix-able header for files missing one.
package license

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/quench/internal/adapters"
	"github.com/alfredjeanlab/quench/internal/check"
	"github.com/alfredjeanlab/quench/internal/violation"
)

// Config configures the license check.
type Config struct {
	SPDX             string // expected SPDX identifier, e.g. "Apache-2.0"
	CopyrightHolder  string
	IncludeTestFiles bool // when false (default), only Source-scope files are scanned
}

// Check implements check.PerFileCheck: every decision is local to one
// file's header, with no cross-file aggregation (same shape as suppress).
type Check struct {
	cfg Config
}

func New(cfg Config) *Check { return &Check{cfg: cfg} }

func (c *Check) Name() string { return "license" }

var (
	spdxPattern      = regexp.MustCompile(`SPDX-License-Identifier:\s*(\S+)`)
	copyrightPattern = regexp.MustCompile(`(?i)Copyright\s*(?:\([cC]\))?\s*((?:\d{4}(?:-\d{4})?))\s+(.+)`)
)

func (c *Check) CheckFile(_ context.Context, fc check.FileContext) ([]violation.Violation, error) {
	if fc.Kind == adapters.KindOther {
		return nil, nil
	}
	if fc.Kind == adapters.KindTest && !c.cfg.IncludeTestFiles {
		return nil, nil
	}
	if fc.Content == nil {
		return nil, nil
	}

	// Only scan the first 20 lines: a license header lives at the top of the
	// file, never buried in the body.
	head := headLines(fc.Content.Bytes(), 20)

	spdxMatch := spdxPattern.FindStringSubmatch(head)
	copyrightMatch := copyrightPattern.FindStringSubmatch(head)

	if spdxMatch == nil && copyrightMatch == nil {
		return []violation.Violation{{
			File:   violation.StrPtr(fc.RelPath),
			Line:   violation.IntPtr(1),
			Type:   "missing_license",
			Advice: "add an SPDX-License-Identifier and copyright header",
		}}, nil
	}

	var violations []violation.Violation
	if spdxMatch != nil && c.cfg.SPDX != "" && spdxMatch[1] != c.cfg.SPDX {
		violations = append(violations, violation.Violation{
			File:    violation.StrPtr(fc.RelPath),
			Line:    violation.IntPtr(1),
			Type:    "wrong_license",
			Advice:  "SPDX identifier does not match the project's configured license",
			Value:   spdxMatch[1],
			Target:  violation.StrPtr(c.cfg.SPDX),
		})
	}

	if copyrightMatch != nil && !yearRangeCoversCurrent(copyrightMatch[1]) {
		violations = append(violations, violation.Violation{
			File:   violation.StrPtr(fc.RelPath),
			Line:   violation.IntPtr(1),
			Type:   "outdated_year",
			Advice: "copyright year range does not cover the current year",
			Value:  copyrightMatch[1],
		})
	}

	return violations, nil
}

func headLines(data []byte, n int) string {
	lines := strings.SplitN(string(data), "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// yearRangeCoversCurrent reports whether a copyright year or year range
// (e.g. "2021" or "2021-2024") includes the current year.
func yearRangeCoversCurrent(raw string) bool {
	now := time.Now().Year()
	parts := strings.SplitN(raw, "-", 2)
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return true // unparseable; don't manufacture a false positive
	}
	end := start
	if len(parts) == 2 {
		if e, err := strconv.Atoi(parts[1]); err == nil {
			end = e
		}
	}
	return now >= start && now <= end
}

// Header builds the license header text for a file's adapter comment syntax
// (spec §4.17's `//`/`#`/`<!-- -->` forms), ready to prepend to file content.
func Header(cs adapters.CommentSyntax, spdx, holder string, year int) string {
	spdxLine := "SPDX-License-Identifier: " + spdx
	copyrightLine := "Copyright (c) " + strconv.Itoa(year) + " " + holder

	if cs.BlockStart != "" {
		return cs.BlockStart + "\n" + spdxLine + "\n" + copyrightLine + "\n" + cs.BlockEnd + "\n\n"
	}
	prefix := cs.Line
	if prefix == "" {
		prefix = "#"
	}
	return prefix + " " + spdxLine + "\n" + prefix + " " + copyrightLine + "\n\n"
}

// Fix inserts a license header into content, preserving a leading shebang
// line as the very first line of the file (spec §4.17's "--fix ... preserving
// any shebang as the first line").
func Fix(content []byte, cs adapters.CommentSyntax, spdx, holder string, year int) []byte {
	header := Header(cs, spdx, holder, year)

	text := string(content)
	if strings.HasPrefix(text, "#!") {
		nl := strings.IndexByte(text, '\n')
		if nl == -1 {
			return []byte(text + "\n" + header)
		}
		shebang := text[:nl+1]
		rest := text[nl+1:]
		return []byte(shebang + header + rest)
	}
	return []byte(header + text)
}
