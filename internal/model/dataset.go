package model

// Dataset is the whole subscription document.
type Dataset struct {
	// AllComics is the full historical set of comics, one entry per ID.
	AllComics []Comic `json:"all_comics"`
	// UpdatedComics is the subset touched by the latest successful flow.
	UpdatedComics []Comic `json:"updated_comics"`
	LastUpdated   string  `json:"last_updated"`
}

// NewDataset returns an empty dataset skeleton.
func NewDataset() Dataset {
	return Dataset{
		AllComics:     []Comic{},
		UpdatedComics: []Comic{},
		LastUpdated:   NeverUpdated,
	}
}

// Copy returns a deep copy of the dataset, nil lists are returned as empty lists.
func (d Dataset) Copy() Dataset {
	cp := Dataset{
		AllComics:     make([]Comic, 0, len(d.AllComics)),
		UpdatedComics: make([]Comic, 0, len(d.UpdatedComics)),
		LastUpdated:   d.LastUpdated,
	}
	for _, c := range d.AllComics {
		cp.AllComics = append(cp.AllComics, c.Copy())
	}
	for _, c := range d.UpdatedComics {
		cp.UpdatedComics = append(cp.UpdatedComics, c.Copy())
	}
	if cp.LastUpdated == "" {
		cp.LastUpdated = NeverUpdated
	}

	return cp
}

// ComicIndex returns the position of a comic in all comics, -1 if missing.
func (d Dataset) ComicIndex(id string) int {
	for i, c := range d.AllComics {
		if c.ID == id {
			return i
		}
	}
	return -1
}
