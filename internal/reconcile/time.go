package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/slok/comicsub/internal/model"
)

var zonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseUpdateTime parses the loosely formatted update times reported by the
// tool. Times without zone are local times.
func ParseUpdateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return time.Time{}, false
	}

	for _, l := range zonedLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	for _, l := range naiveLayouts {
		if t, err := time.ParseInLocation(l, s, time.Local); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// SortByUpdateTime sorts the comics by update time, newest first. Comics
// without a valid update time go last keeping their relative order.
func SortByUpdateTime(comics []model.Comic) {
	type key struct {
		t  time.Time
		ok bool
	}
	keys := make(map[string]key, len(comics))
	keyOf := func(c model.Comic) key {
		k, ok := keys[c.UpdateTime]
		if !ok {
			t, valid := ParseUpdateTime(c.UpdateTime)
			k = key{t: t, ok: valid}
			keys[c.UpdateTime] = k
		}
		return k
	}

	sort.SliceStable(comics, func(i, j int) bool {
		ki, kj := keyOf(comics[i]), keyOf(comics[j])
		switch {
		case ki.ok && kj.ok:
			return ki.t.After(kj.t)
		case ki.ok:
			return true
		default:
			return false
		}
	})
}
