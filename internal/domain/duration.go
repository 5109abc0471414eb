package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

const day = 24 * time.Hour

// Months and years are fixed approximations; due-date arithmetic relies on them.
var periodUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    day,
	"week":   7 * day,
	"month":  30 * day,
	"year":   365 * day,
}

// ParseDuration parses a period of the form "<positive integer> <unit>", such as "6 months".
// Unit names may be pluralized and anything after the first comma is ignored.
func ParseDuration(value string) (time.Duration, error) {
	period := strings.TrimSpace(strings.SplitN(value, ",", 2)[0])
	fields := strings.Fields(period)
	if len(fields) != 2 {
		return 0, zerrors.ConfigurationError("invalid time period %q, expected '<quantity> <unit>'", value)
	}

	quantity, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || quantity < 1 {
		return 0, zerrors.ConfigurationError("invalid time period %q, quantity must be a positive integer", value)
	}

	unit := strings.TrimSuffix(strings.ToLower(fields[1]), "s")
	size, ok := periodUnits[unit]
	if !ok {
		return 0, zerrors.ConfigurationError("invalid time period %q, unknown unit %q", value, fields[1])
	}
	if quantity > math.MaxInt64/int64(size) {
		return 0, zerrors.ConfigurationError("invalid time period %q, too large", value)
	}

	return time.Duration(quantity) * size, nil
}
