// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package normalize

import (
	"fmt"
	"strconv"
)

// Period designator weights in seconds. M is context-dependent: months
// before the T separator, minutes after it. Months are weighted as 30
// days, which is lossy but matches the values already persisted.
const (
	secondsPerYear   = 31_536_000
	secondsPerMonth  = 2_592_000
	secondsPerWeek   = 604_800
	secondsPerDay    = 86_400
	secondsPerHour   = 3_600
	secondsPerMinute = 60
)

// DurationSeconds converts an ISO 8601-like period string such as
// "P1DT2H3M4S" into total seconds.
func DurationSeconds(period string) (int64, error) {
	if len(period) == 0 || period[0] != 'P' {
		return 0, fmt.Errorf("malformed duration %q: missing P designator", period)
	}

	var total int64
	var digits []byte
	inTime := false

	for _, c := range period[1:] {
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, byte(c))
			continue
		case c == 'T':
			inTime = true
			continue
		}

		if len(digits) == 0 {
			return 0, fmt.Errorf("malformed duration %q: designator %c without value", period, c)
		}
		n, err := strconv.ParseInt(string(digits), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q: %w", period, err)
		}
		digits = digits[:0]

		switch c {
		case 'Y':
			total += n * secondsPerYear
		case 'W':
			total += n * secondsPerWeek
		case 'D':
			total += n * secondsPerDay
		case 'H':
			total += n * secondsPerHour
		case 'M':
			if inTime {
				total += n * secondsPerMinute
			} else {
				total += n * secondsPerMonth
			}
		case 'S':
			total += n
		default:
			return 0, fmt.Errorf("malformed duration %q: unknown designator %c", period, c)
		}
	}

	if len(digits) != 0 {
		return 0, fmt.Errorf("malformed duration %q: trailing value without designator", period)
	}
	return total, nil
}
