package reconcile

import (
	"github.com/slok/comicsub/internal/model"
)

// Input is the data of a full refresh reconciliation.
type Input struct {
	// Previous are the stored comics.
	Previous []model.Comic
	// Fresh are the comics reported by the refresh.
	Fresh []model.Comic
	// UpdatedIDs are the IDs the tool reported as updated.
	UpdatedIDs []string
	// FetchTime is the timestamp set to the refreshed comics.
	FetchTime string
}

// Result is the result of a full refresh reconciliation.
type Result struct {
	// All has one entry per stored or fresh comic, sorted by update time.
	All []model.Comic
	// UpdatedIDs are the reported updated IDs that are present in All.
	UpdatedIDs []string
	// NotifyIDs are the previously known comics whose update time changed.
	NotifyIDs []string
	Refreshed int
	Failed    int
	Added     int
}

// Merge reconciles the fresh comics with the stored ones.
//
// Stored comics are never dropped: the ones missing from the fresh data are
// kept as they are and flagged as failed. Brand-new comics are never notified.
func Merge(in Input) Result {
	previous, prevIndex := dedupe(in.Previous)
	fresh, freshIndex := dedupe(in.Fresh)

	res := Result{
		All:        make([]model.Comic, 0, len(previous)+len(fresh)),
		UpdatedIDs: []string{},
		NotifyIDs:  []string{},
	}

	for _, old := range previous {
		i, ok := freshIndex[old.ID]
		if !ok {
			c := old.Copy()
			c.UpdateFailed = true
			res.All = append(res.All, c)
			res.Failed++
			continue
		}

		c := Refresh(&old, fresh[i], in.FetchTime)
		res.All = append(res.All, c)
		res.Refreshed++
		if old.UpdateTime != c.UpdateTime {
			res.NotifyIDs = append(res.NotifyIDs, c.ID)
		}
	}

	for _, c := range fresh {
		if _, ok := prevIndex[c.ID]; ok {
			continue
		}
		res.All = append(res.All, Refresh(nil, c, in.FetchTime))
		res.Added++
	}

	SortByUpdateTime(res.All)

	updated := make(map[string]bool, len(in.UpdatedIDs))
	for _, id := range in.UpdatedIDs {
		updated[id] = true
	}
	for _, c := range res.All {
		if updated[c.ID] {
			res.UpdatedIDs = append(res.UpdatedIDs, c.ID)
		}
	}

	return res
}

// Refresh returns the fresh record of a comic with its fetch times chained
// from the stored one, old is nil on new comics.
func Refresh(old *model.Comic, fresh model.Comic, fetchTime string) model.Comic {
	c := fresh.Copy()
	c.UpdateFailed = false
	if old != nil && old.LastSuccessfulFetchTime != "" {
		c.PreviousSuccessfulFetchTime = old.LastSuccessfulFetchTime
	}
	c.LastSuccessfulFetchTime = fetchTime
	return c
}

// SingleOutcome is the result of a single comic reconciliation.
type SingleOutcome string

const (
	SingleOutcomeRefreshed SingleOutcome = "refreshed"
	SingleOutcomeAdded     SingleOutcome = "added"
	SingleOutcomeFailed    SingleOutcome = "failed"
	// SingleOutcomeUnknown is an unknown comic that was not reported.
	SingleOutcomeUnknown SingleOutcome = "unknown"
)

// MergeOne reconciles a single comic refresh, fresh is nil when the tool
// didn't report the comic. It returns the new comics list and the position
// of the comic on it (-1 if it's not present).
func MergeOne(all []model.Comic, id string, fresh *model.Comic, fetchTime string) ([]model.Comic, int, SingleOutcome) {
	res := make([]model.Comic, 0, len(all)+1)
	for _, c := range all {
		res = append(res, c.Copy())
	}

	i := -1
	for j, c := range res {
		if c.ID == id {
			i = j
			break
		}
	}

	switch {
	case fresh != nil && i >= 0:
		res[i] = Refresh(&res[i], *fresh, fetchTime)
		return res, i, SingleOutcomeRefreshed
	case fresh != nil:
		res = append(res, Refresh(nil, *fresh, fetchTime))
		return res, len(res) - 1, SingleOutcomeAdded
	case i >= 0:
		res[i].UpdateFailed = true
		return res, i, SingleOutcomeFailed
	default:
		return res, -1, SingleOutcomeUnknown
	}
}

// Subset returns the comics with the given IDs in the same order they have on comics.
func Subset(comics []model.Comic, ids []string) []model.Comic {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	res := []model.Comic{}
	for _, c := range comics {
		if want[c.ID] {
			res = append(res, c.Copy())
		}
	}
	return res
}

// dedupe removes the repeated IDs, the first position is kept with the last
// record.
func dedupe(comics []model.Comic) ([]model.Comic, map[string]int) {
	index := map[string]int{}
	res := make([]model.Comic, 0, len(comics))
	for _, c := range comics {
		if i, ok := index[c.ID]; ok {
			res[i] = c
			continue
		}
		index[c.ID] = len(res)
		res = append(res, c)
	}
	return res, index
}
