// Package report renders plain-text summaries of the records falling in a
// calendar week or month, grouped by day.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/workcal/internal/model"
)

// WeekStart returns the Sunday that begins the week containing day.
func WeekStart(day time.Time) time.Time {
	d := truncateDay(day)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// MonthStart returns the first day of the month containing day.
func MonthStart(day time.Time) time.Time {
	d := truncateDay(day)
	return d.AddDate(0, 0, 1-d.Day())
}

// Weekly lists the records of the Sunday-to-Saturday week containing day.
//
//	Weekly Report (Jan 7 - Jan 13, 2024)
//
//	Monday, Jan 8:
//	- [x] write report
func Weekly(records []model.Record, day time.Time) string {
	start := WeekStart(day)
	end := start.AddDate(0, 0, 6)

	var b strings.Builder
	fmt.Fprintf(&b, "Weekly Report (%s - %s)\n\n", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
	writeDays(&b, byDate(records), start, end, "Monday, Jan 2")
	return b.String()
}

// Monthly lists the records of the calendar month containing day.
func Monthly(records []model.Record, day time.Time) string {
	start := MonthStart(day)
	end := start.AddDate(0, 1, -1)

	var b strings.Builder
	fmt.Fprintf(&b, "Monthly Report (%s)\n\n", start.Format("January 2006"))
	writeDays(&b, byDate(records), start, end, "January 2")
	return b.String()
}

// ForDay returns the records dated day, in list order.
func ForDay(records []model.Record, day time.Time) []model.Record {
	return byDate(records)[day.Format(model.DateLayout)]
}

// Summary counts completed and total records.
func Summary(records []model.Record) (done, total int) {
	for _, r := range records {
		if r.Completed {
			done++
		}
	}
	return done, len(records)
}

func writeDays(b *strings.Builder, grouped map[string][]model.Record, start, end time.Time, heading string) {
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		items := grouped[d.Format(model.DateLayout)]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(b, "%s:\n", d.Format(heading))
		for _, r := range items {
			mark := " "
			if r.Completed {
				mark = "x"
			}
			fmt.Fprintf(b, "- [%s] %s\n", mark, r.Content)
		}
		b.WriteString("\n")
	}
}

func byDate(records []model.Record) map[string][]model.Record {
	grouped := make(map[string][]model.Record)
	for _, r := range records {
		grouped[r.Date] = append(grouped[r.Date], r)
	}
	return grouped
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
