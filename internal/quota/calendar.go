package quota

import (
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrInvalidPeriod is returned for malformed or overlapping period definitions.
var ErrInvalidPeriod = eris.New("quota: invalid period")

// Calendar buckets submission dates into quota periods. Explicit periods
// take precedence; a year with no explicit period for a classification falls
// back to calendar quarters (LOCAL) or halves (FORANEA).
type Calendar struct {
	loc      *time.Location
	explicit map[model.Classification][]model.Period
}

// NewCalendar validates the explicit periods and returns a Calendar that
// reads submission timestamps in loc.
func NewCalendar(periods []model.Period, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{loc: loc, explicit: make(map[model.Classification][]model.Period)}

	names := make(map[string]bool, len(periods))
	for _, p := range periods {
		if p.Name == "" {
			return nil, eris.Wrap(ErrInvalidPeriod, "period name is required")
		}
		if names[p.Name] {
			return nil, eris.Wrapf(ErrInvalidPeriod, "period %q defined twice", p.Name)
		}
		names[p.Name] = true
		if _, ok := model.ParseClassification(string(p.Classification)); !ok {
			return nil, eris.Wrapf(ErrInvalidPeriod, "period %q: unknown classification %q", p.Name, p.Classification)
		}
		if p.End.Before(p.Start) {
			return nil, eris.Wrapf(ErrInvalidPeriod, "period %q ends before it starts", p.Name)
		}
		c.explicit[p.Classification] = append(c.explicit[p.Classification], p)
	}

	for class, ps := range c.explicit {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Start.Before(ps[j].Start) })
		for i := 1; i < len(ps); i++ {
			if !ps[i].Start.After(ps[i-1].End) {
				return nil, eris.Wrapf(ErrInvalidPeriod, "%s periods %q and %q overlap", class, ps[i-1].Name, ps[i].Name)
			}
		}
	}
	return c, nil
}

// Location is the zone submission dates are read in.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Date returns the calendar date of t in the calendar's zone.
func (c *Calendar) Date(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodFor returns the period of class that contains t.
func (c *Calendar) PeriodFor(class model.Classification, t time.Time) (model.Period, bool) {
	d := c.Date(t)
	for _, p := range c.Periods(class, []int{d.Year()}) {
		if p.Contains(d) {
			return p, true
		}
	}
	return model.Period{}, false
}

// Periods returns the periods of class that touch any of years, ordered by start.
func (c *Calendar) Periods(class model.Classification, years []int) []model.Period {
	var out []model.Period
	seen := make(map[string]bool)
	for _, y := range years {
		var inYear []model.Period
		for _, p := range c.explicit[class] {
			if p.Start.Year() <= y && p.End.Year() >= y {
				inYear = append(inYear, p)
			}
		}
		if len(inYear) == 0 {
			inYear = generated(class, y)
		}
		for _, p := range inYear {
			if !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// generated returns calendar quarters for LOCAL and halves for FORANEA.
func generated(class model.Classification, year int) []model.Period {
	months, prefix := 3, "Q"
	if class == model.ClassForanea {
		months, prefix = 6, "H"
	}
	var out []model.Period
	for i, m := 0, time.January; m <= time.December; i, m = i+1, m+time.Month(months) {
		start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		out = append(out, model.Period{
			Name:           fmt.Sprintf("%d-%s%d", year, prefix, i+1),
			Classification: class,
			Start:          start,
			End:            start.AddDate(0, months, -1),
		})
	}
	return out
}

// Years returns the distinct calendar years of the submissions, ascending.
func (c *Calendar) Years(subs []model.ResolvedSubmission) []int {
	set := make(map[int]bool)
	for _, s := range subs {
		set[c.Date(s.SubmittedAt).Year()] = true
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
