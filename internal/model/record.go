package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a record's calendar date.
const DateLayout = "2006-01-02"

// Record is a single work item on the shared calendar list.
type Record struct {
	ID        string `json:"id" db:"id"`
	Date      string `json:"date" db:"date"`
	Content   string `json:"content" db:"content"`
	Completed bool   `json:"completed" db:"completed"`
}

// Day parses the record's date. Records only ever hold dates that passed
// ValidateDate, so the error is reported rather than expected.
func (r Record) Day() (time.Time, error) {
	return time.Parse(DateLayout, r.Date)
}

// ValidateDate reports whether s is a calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return nil
}

// Snapshot is the complete ordered record list as the store held it at one
// instant. Version increases by one for every committed mutation, so a larger
// version always describes a later state.
type Snapshot struct {
	Version uint64   `json:"version"`
	Records []Record `json:"data"`
}

// Clone returns a deep copy so callers can hand the snapshot to other
// goroutines without sharing the backing array.
func (s Snapshot) Clone() Snapshot {
	records := make([]Record, len(s.Records))
	copy(records, s.Records)
	return Snapshot{Version: s.Version, Records: records}
}

// Equal reports whether two snapshots hold the same records in the same order.
// The version is ignored: equal content is equal state.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.Records) != len(other.Records) {
		return false
	}
	for i := range s.Records {
		if s.Records[i] != other.Records[i] {
			return false
		}
	}
	return true
}

// SortOrder selects how a snapshot's records are ordered.
type SortOrder int

const (
	// OrderOldestFirst is insertion order, the default.
	OrderOldestFirst SortOrder = iota
	// OrderNewestFirst is reverse insertion order.
	OrderNewestFirst
	// OrderByDate sorts by calendar date, ties broken by insertion order.
	OrderByDate
)

// ParseSortOrder maps the "order" query parameter to a SortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oldest", "created":
		return OrderOldestFirst, nil
	case "newest":
		return OrderNewestFirst, nil
	case "date":
		return OrderByDate, nil
	default:
		return OrderOldestFirst, fmt.Errorf("unknown order %q", s)
	}
}

func (o SortOrder) String() string {
	switch o {
	case OrderNewestFirst:
		return "newest"
	case OrderByDate:
		return "date"
	default:
		return "oldest"
	}
}

// Next cycles oldest → newest → date → oldest.
func (o SortOrder) Next() SortOrder {
	return (o + 1) % 3
}

// SortRecords reorders records that are already in insertion order.
func SortRecords(records []Record, order SortOrder) {
	switch order {
	case OrderNewestFirst:
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	case OrderByDate:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Date < records[j].Date
		})
	}
}
