package venera

import "github.com/slok/comicsub/internal/model"

// Comics returns the comics reported by the progress payloads in first seen
// order, when an ID is reported more than once the last record wins.
func Comics(payloads []Payload) []model.Comic {
	index := map[string]int{}
	comics := []model.Comic{}
	for _, p := range payloads {
		data, ok := p.Progress()
		if !ok || data.Comic == nil || data.Comic.ID == "" {
			continue
		}

		if i, ok := index[data.Comic.ID]; ok {
			comics[i] = *data.Comic
			continue
		}
		index[data.Comic.ID] = len(comics)
		comics = append(comics, *data.Comic)
	}

	return comics
}

// UpdatedComicIDs returns the updated IDs of the terminal payload, only the
// last payload is taken into account.
func UpdatedComicIDs(payloads []Payload) []string {
	if len(payloads) == 0 {
		return nil
	}

	ids, ok := payloads[len(payloads)-1].UpdatedIDs()
	if !ok {
		return nil
	}
	return ids
}

// FindComic returns the last record reported for an ID.
func FindComic(payloads []Payload, id string) (model.Comic, bool) {
	for _, c := range Comics(payloads) {
		if c.ID == id {
			return c, true
		}
	}
	return model.Comic{}, false
}
