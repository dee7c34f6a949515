package service

import (
	"context"
	"sort"
	"strings"
)

// RosterSource supplies the preferred display order of teachers.
type RosterSource interface {
	Names(ctx context.Context) ([]string, error)
}

// OrderTeachers lists roster names first, in roster order, followed by the remaining known
// teachers sorted by name. A roster name is a teacher in its own right: it stays even when the
// timetable gives it no lesson. Blank and repeated names are dropped.
func OrderTeachers(known, roster []string) []string {
	seen := make(map[string]struct{}, len(known)+len(roster))
	ordered := make([]string, 0, len(known)+len(roster))
	for _, name := range roster {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}

	rest := make([]string, 0, len(known))
	for _, name := range known {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}
