package model

import (
	"fmt"
	"strings"
)

// SortKey selects the column processes are ordered by.
type SortKey int

const (
	SortPID SortKey = iota
	SortName
	SortCPU
	SortMemory
)

var sortKeyNames = []string{"pid", "name", "cpu", "memory"}

func (k SortKey) String() string {
	if k < 0 || int(k) >= len(sortKeyNames) {
		return "unknown"
	}
	return sortKeyNames[k]
}

// ParseSortKey maps a column name ("pid", "name", "cpu", "mem"/"memory") to a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pid":
		return SortPID, nil
	case "name", "command":
		return SortName, nil
	case "cpu", "cpu%":
		return SortCPU, nil
	case "mem", "memory", "rss":
		return SortMemory, nil
	}
	return SortCPU, fmt.Errorf("unknown sort key %q (valid: %s)", s, strings.Join(sortKeyNames, ", "))
}

// SortCriterion is the active ordering of the process view.
type SortCriterion struct {
	Key        SortKey
	Descending bool
}

// DefaultSortCriterion is cpu%, highest first.
func DefaultSortCriterion() SortCriterion {
	return SortCriterion{Key: SortCPU, Descending: true}
}

// Select returns the criterion after the user picks key: reselecting the
// current key flips direction, a new key starts descending.
func (c SortCriterion) Select(key SortKey) SortCriterion {
	if c.Key == key {
		c.Descending = !c.Descending
		return c
	}
	return SortCriterion{Key: key, Descending: true}
}

func (c SortCriterion) String() string {
	dir := "asc"
	if c.Descending {
		dir = "desc"
	}
	return c.Key.String() + " " + dir
}
