package transit

import (
	"fmt"
	"time"
)

// dateLayout is the vendor's fixed-width date format: MM-DD-YYYY.
const dateLayout = "01-02-2006"

// DateRange is an inclusive calendar date range with a weekly day-of-week
// mask. IncludeDays has seven entries starting with Monday; a nonzero entry
// includes that weekday.
type DateRange struct {
	StartDate   string `json:"start_date" yaml:"start_date"`
	EndDate     string `json:"end_date" yaml:"end_date"`
	IncludeDays []int  `json:"include_days" yaml:"include_days"`
}

// FormattedDates expands date ranges into the flat ordered list of matching
// calendar dates, formatted for use as repeated per-date API query
// parameters.
func FormattedDates(ranges []DateRange) ([]string, error) {
	var dates []string
	for i, r := range ranges {
		if len(r.IncludeDays) != 7 {
			return nil, fmt.Errorf("date range %d: include_days must have 7 entries (Monday first), got %d", i, len(r.IncludeDays))
		}

		start, err := time.Parse(dateLayout, r.StartDate)
		if err != nil {
			return nil, fmt.Errorf("date range %d: unable to parse start date %q", i, r.StartDate)
		}
		end, err := time.Parse(dateLayout, r.EndDate)
		if err != nil {
			return nil, fmt.Errorf("date range %d: unable to parse end date %q", i, r.EndDate)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("date range %d: end date %s is before start date %s", i, r.EndDate, r.StartDate)
		}

		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			// time.Weekday is Sunday-first; the mask is Monday-first.
			mondayFirst := (int(d.Weekday()) + 6) % 7
			if r.IncludeDays[mondayFirst] != 0 {
				dates = append(dates, d.Format(dateLayout))
			}
		}
	}
	return dates, nil
}
