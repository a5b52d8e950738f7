package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormattedDates_WeekdayMask(t *testing.T) {
	// Sep 2-8 2019 runs Monday through Sunday. Tue/Wed/Thu only.
	dates, err := FormattedDates([]DateRange{{
		StartDate:   "09-02-2019",
		EndDate:     "09-08-2019",
		IncludeDays: []int{0, 1, 1, 1, 0, 0, 0},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"09-03-2019", "09-04-2019", "09-05-2019"}, dates)
}

func TestFormattedDates_MultipleRangesConcatenate(t *testing.T) {
	everyDay := []int{1, 1, 1, 1, 1, 1, 1}
	dates, err := FormattedDates([]DateRange{
		{StartDate: "09-01-2019", EndDate: "09-02-2019", IncludeDays: everyDay},
		{StartDate: "10-01-2019", EndDate: "10-01-2019", IncludeDays: everyDay},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"09-01-2019", "09-02-2019", "10-01-2019"}, dates)
}

func TestFormattedDates_Errors(t *testing.T) {
	t.Run("bad mask length", func(t *testing.T) {
		_, err := FormattedDates([]DateRange{{
			StartDate:   "09-01-2019",
			EndDate:     "09-02-2019",
			IncludeDays: []int{1, 1},
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "7 entries")
	})

	t.Run("unparsable date", func(t *testing.T) {
		_, err := FormattedDates([]DateRange{{
			StartDate:   "2019-09-01",
			EndDate:     "09-02-2019",
			IncludeDays: []int{1, 1, 1, 1, 1, 1, 1},
		}})
		require.Error(t, err)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := FormattedDates([]DateRange{{
			StartDate:   "09-02-2019",
			EndDate:     "09-01-2019",
			IncludeDays: []int{1, 1, 1, 1, 1, 1, 1},
		}})
		require.Error(t, err)
	})
}
