package reconcile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/reconcile"
)

func TestParseUpdateTime(t *testing.T) {
	tests := map[string]struct {
		value   string
		expOK   bool
		expTime time.Time
	}{
		"Empty values should be unparsable.": {
			value: "",
		},

		"None should be unparsable.": {
			value: "None",
		},

		"Garbage should be unparsable.": {
			value: "yesterday",
		},

		"ISO times with Z should be UTC.": {
			value:   "2024-02-01T10:20:30Z",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 10, 20, 30, 0, time.UTC),
		},

		"ISO times with fractions and offsets should be parsed.": {
			value:   "2024-02-01T10:20:30.5+02:00",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 8, 20, 30, 500000000, time.UTC),
		},

		"Naive ISO times should be local.": {
			value:   "2024-02-01T10:20:30",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 10, 20, 30, 0, time.Local),
		},

		"Date and time should be parsed.": {
			value:   "2024-02-01 10:20:30",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 10, 20, 30, 0, time.Local),
		},

		"Dates should be parsed.": {
			value:   "2024-02-01",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local),
		},

		"Slash separated dates should be parsed.": {
			value:   "2024/02/01",
			expOK:   true,
			expTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, ok := reconcile.ParseUpdateTime(test.value)
			assert.Equal(test.expOK, ok)
			if test.expOK {
				assert.True(test.expTime.Equal(got), "expected %s, got %s", test.expTime, got)
			}
		})
	}
}

func ids(comics []model.Comic) []string {
	res := []string{}
	for _, c := range comics {
		res = append(res, c.ID)
	}
	return res
}

func TestSortByUpdateTime(t *testing.T) {
	comics := []model.Comic{
		{ID: "bad", UpdateTime: "not a date"},
		{ID: "t2", UpdateTime: "2024-01-01"},
		{ID: "missing"},
		{ID: "t1", UpdateTime: "2024-03-01T00:00:00Z"},
		{ID: "t3", UpdateTime: "2023/12/31"},
	}

	reconcile.SortByUpdateTime(comics)

	assert.Equal(t, []string{"t1", "t2", "t3", "bad", "missing"}, ids(comics))
}

func TestMerge(t *testing.T) {
	const fetchTime = "2024-02-02 10:00:00"

	tests := map[string]struct {
		in           reconcile.Input
		expAll       []model.Comic
		expUpdated   []string
		expNotify    []string
		expRefreshed int
		expFailed    int
		expAdded     int
	}{
		"Refreshed comics should be replaced and notified when the update time changes, new comics should not be notified.": {
			in: reconcile.Input{
				Previous:   []model.Comic{{ID: "1", Name: "A", UpdateTime: "2024-01-01"}},
				Fresh:      []model.Comic{{ID: "1", Name: "A2", UpdateTime: "2024-02-01"}, {ID: "2", Name: "B", UpdateTime: "2023-01-01"}},
				UpdatedIDs: []string{"1", "2"},
				FetchTime:  fetchTime,
			},
			expAll: []model.Comic{
				{ID: "1", Name: "A2", UpdateTime: "2024-02-01", LastSuccessfulFetchTime: fetchTime},
				{ID: "2", Name: "B", UpdateTime: "2023-01-01", LastSuccessfulFetchTime: fetchTime},
			},
			expUpdated:   []string{"1", "2"},
			expNotify:    []string{"1"},
			expRefreshed: 1,
			expAdded:     1,
		},

		"Comics missing from the refresh should be kept and flagged as failed.": {
			in: reconcile.Input{
				Previous:  []model.Comic{{ID: "3", Name: "C", UpdateTime: "2024-01-01", LastSuccessfulFetchTime: "2024-01-01 00:00:00"}},
				Fresh:     []model.Comic{},
				FetchTime: fetchTime,
			},
			expAll: []model.Comic{
				{ID: "3", Name: "C", UpdateTime: "2024-01-01", LastSuccessfulFetchTime: "2024-01-01 00:00:00", UpdateFailed: true},
			},
			expUpdated: []string{},
			expNotify:  []string{},
			expFailed:  1,
		},

		"Failed flags should be cleared and fetch times chained on refreshed comics.": {
			in: reconcile.Input{
				Previous:  []model.Comic{{ID: "1", UpdateTime: "2024-01-01", LastSuccessfulFetchTime: "2024-01-01 00:00:00", UpdateFailed: true}},
				Fresh:     []model.Comic{{ID: "1", UpdateTime: "2024-01-01"}},
				FetchTime: fetchTime,
			},
			expAll: []model.Comic{
				{ID: "1", UpdateTime: "2024-01-01", PreviousSuccessfulFetchTime: "2024-01-01 00:00:00", LastSuccessfulFetchTime: fetchTime},
			},
			expUpdated:   []string{},
			expNotify:    []string{},
			expRefreshed: 1,
		},

		"Updated IDs that are not present should be ignored and the order should be the sorted one.": {
			in: reconcile.Input{
				Fresh: []model.Comic{
					{ID: "old", UpdateTime: "2020-01-01"},
					{ID: "none", UpdateTime: "None"},
					{ID: "new", UpdateTime: "2024-01-01"},
				},
				UpdatedIDs: []string{"none", "ghost", "old", "new"},
				FetchTime:  fetchTime,
			},
			expAll: []model.Comic{
				{ID: "new", UpdateTime: "2024-01-01", LastSuccessfulFetchTime: fetchTime},
				{ID: "old", UpdateTime: "2020-01-01", LastSuccessfulFetchTime: fetchTime},
				{ID: "none", UpdateTime: "None", LastSuccessfulFetchTime: fetchTime},
			},
			expUpdated: []string{"new", "old", "none"},
			expNotify:  []string{},
			expAdded:   3,
		},

		"Repeated IDs should be merged into a single comic.": {
			in: reconcile.Input{
				Previous:  []model.Comic{{ID: "1", Name: "first"}, {ID: "1", Name: "second"}},
				Fresh:     []model.Comic{{ID: "1", Name: "fresh"}, {ID: "1", Name: "fresher"}},
				FetchTime: fetchTime,
			},
			expAll: []model.Comic{
				{ID: "1", Name: "fresher", LastSuccessfulFetchTime: fetchTime},
			},
			expUpdated:   []string{},
			expNotify:    []string{},
			expRefreshed: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got := reconcile.Merge(test.in)

			assert.Equal(test.expAll, got.All)
			assert.Equal(test.expUpdated, got.UpdatedIDs)
			assert.Equal(test.expNotify, got.NotifyIDs)
			assert.Equal(test.expRefreshed, got.Refreshed)
			assert.Equal(test.expFailed, got.Failed)
			assert.Equal(test.expAdded, got.Added)
		})
	}
}

func TestMergeNeverDropsStoredComics(t *testing.T) {
	previous := []model.Comic{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	fresh := []model.Comic{{ID: "2"}, {ID: "4"}}

	got := reconcile.Merge(reconcile.Input{Previous: previous, Fresh: fresh, FetchTime: "now"})

	assert.GreaterOrEqual(t, len(got.All), len(previous))
	assert.ElementsMatch(t, []string{"1", "2", "3", "4"}, ids(got.All))
	for _, c := range got.All {
		assert.Equal(t, c.ID == "1" || c.ID == "3", c.UpdateFailed, c.ID)
	}
}

func TestMergeChainsFetchTimesAcrossFlows(t *testing.T) {
	fresh := []model.Comic{{ID: "1", UpdateTime: "2024-01-01"}}

	first := reconcile.Merge(reconcile.Input{Fresh: fresh, FetchTime: "2024-01-01 10:00:00"})
	second := reconcile.Merge(reconcile.Input{Previous: first.All, Fresh: fresh, FetchTime: "2024-01-02 10:00:00"})

	require.Len(t, second.All, 1)
	assert.Equal(t, first.All[0].LastSuccessfulFetchTime, second.All[0].PreviousSuccessfulFetchTime)
	assert.Equal(t, "2024-01-02 10:00:00", second.All[0].LastSuccessfulFetchTime)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	previous := []model.Comic{{ID: "1", Tags: []string{"a"}}}

	reconcile.Merge(reconcile.Input{Previous: previous, FetchTime: "now"})

	assert.False(t, previous[0].UpdateFailed)
}

func TestMergeOne(t *testing.T) {
	const fetchTime = "2024-02-02 10:00:00"
	stored := []model.Comic{
		{ID: "1", Name: "A", LastSuccessfulFetchTime: "2024-01-01 00:00:00"},
		{ID: "2", Name: "B"},
	}

	tests := map[string]struct {
		id         string
		fresh      *model.Comic
		expAll     []model.Comic
		expIndex   int
		expOutcome reconcile.SingleOutcome
	}{
		"A reported known comic should be replaced with its fetch times chained.": {
			id:    "1",
			fresh: &model.Comic{ID: "1", Name: "A2"},
			expAll: []model.Comic{
				{ID: "1", Name: "A2", PreviousSuccessfulFetchTime: "2024-01-01 00:00:00", LastSuccessfulFetchTime: fetchTime},
				{ID: "2", Name: "B"},
			},
			expIndex:   0,
			expOutcome: reconcile.SingleOutcomeRefreshed,
		},

		"A reported unknown comic should be appended.": {
			id:    "3",
			fresh: &model.Comic{ID: "3", Name: "C"},
			expAll: []model.Comic{
				{ID: "1", Name: "A", LastSuccessfulFetchTime: "2024-01-01 00:00:00"},
				{ID: "2", Name: "B"},
				{ID: "3", Name: "C", LastSuccessfulFetchTime: fetchTime},
			},
			expIndex:   2,
			expOutcome: reconcile.SingleOutcomeAdded,
		},

		"A not reported known comic should be flagged as failed.": {
			id: "2",
			expAll: []model.Comic{
				{ID: "1", Name: "A", LastSuccessfulFetchTime: "2024-01-01 00:00:00"},
				{ID: "2", Name: "B", UpdateFailed: true},
			},
			expIndex:   1,
			expOutcome: reconcile.SingleOutcomeFailed,
		},

		"A not reported unknown comic should leave the comics untouched.": {
			id:         "3",
			expAll:     stored,
			expIndex:   -1,
			expOutcome: reconcile.SingleOutcomeUnknown,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, i, outcome := reconcile.MergeOne(stored, test.id, test.fresh, fetchTime)

			assert.Equal(test.expAll, got)
			assert.Equal(test.expIndex, i)
			assert.Equal(test.expOutcome, outcome)
		})
	}
}

func TestSubset(t *testing.T) {
	comics := []model.Comic{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	got := reconcile.Subset(comics, []string{"3", "1", "9"})

	assert.Equal(t, []string{"1", "3"}, ids(got))
}
