package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestActivePlanEnd_SingleCount(t *testing.T) {
	phaseStart := date(2024, time.January, 1)
	phaseEnd := date(2024, time.February, 1)

	// При кратности 1 возвращается конец фазы провайдера,
	// точка наблюдения не влияет на результат.
	for _, interval := range []string{"day", "month", "year"} {
		got, err := ActivePlanEnd(interval, 1, phaseStart, phaseEnd, date(2030, time.January, 1))
		require.NoError(t, err)
		assert.Equal(t, phaseEnd, got, "interval %s", interval)
	}
}

func TestActivePlanEnd_ThreeMonthCycles(t *testing.T) {
	phaseStart := date(2024, time.January, 1)
	phaseEnd := date(2024, time.April, 1)

	tests := []struct {
		name     string
		observed time.Time
		want     time.Time
	}{
		{
			name:     "observation inside second cycle picks its boundary",
			observed: date(2024, time.May, 1),
			want:     date(2024, time.July, 1),
		},
		{
			name:     "observation on boundary picks that boundary",
			observed: date(2024, time.April, 1),
			want:     date(2024, time.April, 1),
		},
		{
			name:     "observation before first boundary",
			observed: date(2024, time.February, 15),
			want:     date(2024, time.April, 1),
		},
		{
			name:     "observation deep into later cycles",
			observed: date(2025, time.March, 2),
			want:     date(2025, time.April, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActivePlanEnd("month", 3, phaseStart, phaseEnd, tt.observed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActivePlanEnd_SixMonthCycles(t *testing.T) {
	phaseStart := date(2024, time.January, 15)
	phaseEnd := date(2024, time.July, 15)

	got, err := ActivePlanEnd("month", 6, phaseStart, phaseEnd, date(2024, time.October, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.January, 15), got)
}

func TestActivePlanEnd_Deterministic(t *testing.T) {
	phaseStart := date(2024, time.March, 10)
	observed := date(2024, time.September, 1)

	first, err := ActivePlanEnd("month", 3, phaseStart, phaseStart.AddDate(0, 3, 0), observed)
	require.NoError(t, err)
	second, err := ActivePlanEnd("month", 3, phaseStart, phaseStart.AddDate(0, 3, 0), observed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestActivePlanEnd_UnsupportedCombinations(t *testing.T) {
	phaseStart := date(2024, time.January, 1)
	phaseEnd := date(2024, time.April, 1)

	_, err := ActivePlanEnd("year", 3, phaseStart, phaseEnd, phaseStart)
	assert.ErrorIs(t, err, ErrUnsupportedInterval)

	_, err = ActivePlanEnd("month", 4, phaseStart, phaseEnd, phaseStart)
	assert.ErrorIs(t, err, ErrUnsupportedInterval)

	_, err = ActivePlanEnd("week", 1, phaseStart, phaseEnd, phaseStart)
	assert.ErrorIs(t, err, ErrUnsupportedInterval)
}

func TestActivePlanEnd_PastHorizon(t *testing.T) {
	phaseStart := date(2024, time.January, 1)
	phaseEnd := date(2024, time.April, 1)

	_, err := ActivePlanEnd("month", 3, phaseStart, phaseEnd, phaseStart.AddDate(11, 0, 0))
	assert.ErrorIs(t, err, ErrPastHorizon)
}
