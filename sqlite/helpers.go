package sqlite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/otokit"
)

// timeLayout is RFC3339 with fixed nanoseconds so stored UTC timestamps
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp. An empty value is the zero time.
func parseTime(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}

// formatDifficulties encodes difficulties as a comma separated list.
func formatDifficulties(ds []otokit.Difficulty) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseDifficulties(value string) ([]otokit.Difficulty, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ds := make([]otokit.Difficulty, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("failed to parse difficulties: %w", err)
		}
		ds = append(ds, otokit.Difficulty(n))
	}
	return ds, nil
}

// appendPagination appends LIMIT and OFFSET clauses to a query builder if values are > 0.
func appendPagination(query *strings.Builder, args *[]any, limit, offset int) {
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			// SQLite needs a LIMIT before OFFSET.
			query.WriteString(" LIMIT -1")
		}
		query.WriteString(" OFFSET ?")
		*args = append(*args, offset)
	}
}
