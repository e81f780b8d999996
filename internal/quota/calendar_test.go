package quota

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

var mty = time.FixedZone("CST", -6*3600)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func periods2025() []model.Period {
	return []model.Period{
		{Name: "NL-T1-2025", Classification: model.ClassLocal, Start: day(2025, 3, 12), End: day(2025, 4, 16)},
		{Name: "NL-T2-2025", Classification: model.ClassLocal, Start: day(2025, 6, 11), End: day(2025, 8, 18)},
		{Name: "FOR-S1-2025", Classification: model.ClassForanea, Start: day(2025, 4, 10), End: day(2025, 6, 9)},
	}
}

func TestCalendar_ExplicitPeriods(t *testing.T) {
	c, err := NewCalendar(periods2025(), mty)
	require.NoError(t, err)

	p, ok := c.PeriodFor(model.ClassLocal, time.Date(2025, 4, 16, 20, 0, 0, 0, mty))
	require.True(t, ok)
	assert.Equal(t, "NL-T1-2025", p.Name)

	// 2025-04-17 02:00 UTC is still 2025-04-16 in Monterrey.
	p, ok = c.PeriodFor(model.ClassLocal, time.Date(2025, 4, 17, 2, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "NL-T1-2025", p.Name)

	_, ok = c.PeriodFor(model.ClassLocal, time.Date(2025, 5, 1, 12, 0, 0, 0, mty))
	assert.False(t, ok, "gap between explicit periods is out of period")

	p, ok = c.PeriodFor(model.ClassForanea, time.Date(2025, 5, 1, 12, 0, 0, 0, mty))
	require.True(t, ok)
	assert.Equal(t, "FOR-S1-2025", p.Name)
}

func TestCalendar_GeneratedFallback(t *testing.T) {
	c, err := NewCalendar(periods2025(), mty)
	require.NoError(t, err)

	p, ok := c.PeriodFor(model.ClassLocal, time.Date(2026, 5, 20, 9, 0, 0, 0, mty))
	require.True(t, ok)
	assert.Equal(t, "2026-Q2", p.Name)
	assert.Equal(t, day(2026, 4, 1), p.Start)
	assert.Equal(t, day(2026, 6, 30), p.End)

	p, ok = c.PeriodFor(model.ClassForanea, time.Date(2026, 12, 31, 9, 0, 0, 0, mty))
	require.True(t, ok)
	assert.Equal(t, "2026-H2", p.Name)
	assert.Equal(t, day(2026, 7, 1), p.Start)
	assert.Equal(t, day(2026, 12, 31), p.End)
}

func TestCalendar_Periods(t *testing.T) {
	c, err := NewCalendar(nil, nil)
	require.NoError(t, err)

	local := c.Periods(model.ClassLocal, []int{2026, 2025})
	require.Len(t, local, 8)
	assert.Equal(t, "2025-Q1", local[0].Name)
	assert.Equal(t, "2026-Q4", local[7].Name)

	foranea := c.Periods(model.ClassForanea, []int{2026})
	require.Len(t, foranea, 2)
	assert.Equal(t, day(2026, 6, 30), foranea[0].End)
}

func TestNewCalendar_Errors(t *testing.T) {
	tests := []struct {
		name    string
		periods []model.Period
	}{
		{"missing name", []model.Period{{Classification: model.ClassLocal, Start: day(2025, 1, 1), End: day(2025, 2, 1)}}},
		{"duplicate name", []model.Period{
			{Name: "A", Classification: model.ClassLocal, Start: day(2025, 1, 1), End: day(2025, 2, 1)},
			{Name: "A", Classification: model.ClassLocal, Start: day(2025, 3, 1), End: day(2025, 4, 1)},
		}},
		{"unknown classification", []model.Period{{Name: "A", Classification: "X", Start: day(2025, 1, 1), End: day(2025, 2, 1)}}},
		{"reversed", []model.Period{{Name: "A", Classification: model.ClassLocal, Start: day(2025, 2, 1), End: day(2025, 1, 1)}}},
		{"overlap", []model.Period{
			{Name: "A", Classification: model.ClassLocal, Start: day(2025, 1, 1), End: day(2025, 2, 1)},
			{Name: "B", Classification: model.ClassLocal, Start: day(2025, 2, 1), End: day(2025, 3, 1)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalendar(tt.periods, mty)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidPeriod))
		})
	}
}

func TestCalendar_Years(t *testing.T) {
	c, err := NewCalendar(nil, mty)
	require.NoError(t, err)
	subs := []model.ResolvedSubmission{
		{Submission: model.Submission{SubmittedAt: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)}},
		{Submission: model.Submission{SubmittedAt: time.Date(2025, 7, 1, 3, 0, 0, 0, mty)}},
	}
	// 2026-01-01 03:00 UTC is New Year's Eve in Monterrey.
	assert.Equal(t, []int{2025}, c.Years(subs))
}
