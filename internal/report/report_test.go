package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/workcal/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

var sample = []model.Record{
	{ID: "1", Date: "2024-01-08", Content: "write report", Completed: true},
	{ID: "2", Date: "2024-01-10", Content: "review PR"},
	{ID: "3", Date: "2024-01-08", Content: "standup"},
	{ID: "4", Date: "2024-01-20", Content: "retro"},
	{ID: "5", Date: "2024-02-01", Content: "planning"},
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, day("2024-01-07"), WeekStart(day("2024-01-10")))
	assert.Equal(t, day("2024-01-07"), WeekStart(day("2024-01-07")))
	assert.Equal(t, day("2024-01-07"), WeekStart(day("2024-01-13")))
	assert.Equal(t, day("2023-12-31"), WeekStart(day("2024-01-03")))
}

func TestMonthStart(t *testing.T) {
	assert.Equal(t, day("2024-02-01"), MonthStart(day("2024-02-29")))
}

func TestWeekly(t *testing.T) {
	want := "Weekly Report (Jan 7 - Jan 13, 2024)\n\n" +
		"Monday, Jan 8:\n" +
		"- [x] write report\n" +
		"- [ ] standup\n\n" +
		"Wednesday, Jan 10:\n" +
		"- [ ] review PR\n\n"
	assert.Equal(t, want, Weekly(sample, day("2024-01-10")))
}

func TestWeeklyEmpty(t *testing.T) {
	assert.Equal(t, "Weekly Report (Mar 3 - Mar 9, 2024)\n\n", Weekly(sample, day("2024-03-05")))
}

func TestMonthly(t *testing.T) {
	want := "Monthly Report (January 2024)\n\n" +
		"January 8:\n" +
		"- [x] write report\n" +
		"- [ ] standup\n\n" +
		"January 10:\n" +
		"- [ ] review PR\n\n" +
		"January 20:\n" +
		"- [ ] retro\n\n"
	assert.Equal(t, want, Monthly(sample, day("2024-01-31")))
}

func TestForDayAndSummary(t *testing.T) {
	got := ForDay(sample, day("2024-01-08"))
	if assert.Len(t, got, 2) {
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	}

	done, total := Summary(sample)
	assert.Equal(t, 1, done)
	assert.Equal(t, 5, total)
}
