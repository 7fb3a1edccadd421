package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NeverUpdated is the last updated value of a dataset that has never been refreshed.
const NeverUpdated = "never"

// FetchTimeLayout is the layout used for the timestamps the application writes.
const FetchTimeLayout = "2006-01-02 15:04:05"

// Comic is a tracked subscription item.
//
// UpdateTime is reported by the external tool and it's loosely formatted, the
// fetch times are written by us using FetchTimeLayout.
type Comic struct {
	ID                          string
	Name                        string
	Author                      string
	Tags                        []string
	Type                        string
	UpdateTime                  string
	CoverURL                    string
	LastSuccessfulFetchTime     string
	PreviousSuccessfulFetchTime string
	UpdateFailed                bool

	// Extra has the fields reported by the tool that we don't know about,
	// they are kept untouched so they survive a load/save cycle.
	Extra map[string]json.RawMessage
}

// Copy returns a deep copy of the comic.
func (c Comic) Copy() Comic {
	cp := c
	if c.Tags != nil {
		cp.Tags = append([]string{}, c.Tags...)
	}
	if c.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = append(json.RawMessage{}, v...)
		}
	}
	return cp
}

const (
	comicKeyID           = "id"
	comicKeyName         = "name"
	comicKeyAuthor       = "author"
	comicKeyTags         = "tags"
	comicKeyType         = "type"
	comicKeyUpdateTime   = "updateTime"
	comicKeyCoverURL     = "coverUrl"
	comicKeyLastFetch    = "lastSuccessfulFetchTime"
	comicKeyPrevFetch    = "previousSuccessfulFetchTime"
	comicKeyUpdateFailed = "updateFailed"
)

// MarshalJSON satisfies json.Marshaler.
func (c Comic) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(c.Extra)+10)
	for k, v := range c.Extra {
		fields[k] = v
	}

	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}

	fields[comicKeyID] = c.ID
	fields[comicKeyName] = c.Name
	fields[comicKeyAuthor] = c.Author
	fields[comicKeyTags] = tags
	fields[comicKeyUpdateTime] = c.UpdateTime
	fields[comicKeyCoverURL] = c.CoverURL
	fields[comicKeyUpdateFailed] = c.UpdateFailed
	if c.Type != "" {
		fields[comicKeyType] = c.Type
	}
	if c.LastSuccessfulFetchTime != "" {
		fields[comicKeyLastFetch] = c.LastSuccessfulFetchTime
	}
	if c.PreviousSuccessfulFetchTime != "" {
		fields[comicKeyPrevFetch] = c.PreviousSuccessfulFetchTime
	}

	return json.Marshal(fields)
}

// UnmarshalJSON satisfies json.Unmarshaler.
//
// The tool is not strict with its types, so scalar fields accept strings,
// numbers and nulls.
func (c *Comic) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("comic is null: %w", ErrNotValid)
	}

	var res Comic
	var err error
	str := func(key string) string {
		raw, ok := fields[key]
		delete(fields, key)
		if !ok || err != nil {
			return ""
		}
		var s string
		s, err = looseString(raw)
		if err != nil {
			err = fmt.Errorf("invalid %q field: %w", key, err)
		}
		return s
	}

	res.ID = str(comicKeyID)
	res.Name = str(comicKeyName)
	res.Author = str(comicKeyAuthor)
	res.Type = str(comicKeyType)
	res.UpdateTime = str(comicKeyUpdateTime)
	res.CoverURL = str(comicKeyCoverURL)
	res.LastSuccessfulFetchTime = str(comicKeyLastFetch)
	res.PreviousSuccessfulFetchTime = str(comicKeyPrevFetch)
	if err != nil {
		return err
	}

	if raw, ok := fields[comicKeyTags]; ok {
		delete(fields, comicKeyTags)
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &res.Tags); err != nil {
				return fmt.Errorf("invalid %q field: %w", comicKeyTags, err)
			}
		}
		if len(res.Tags) == 0 {
			res.Tags = nil
		}
	}

	if raw, ok := fields[comicKeyUpdateFailed]; ok {
		delete(fields, comicKeyUpdateFailed)
		// Anything that is not a bool is treated as not failed.
		_ = json.Unmarshal(raw, &res.UpdateFailed)
	}

	if len(fields) > 0 {
		res.Extra = fields
	}

	*c = res
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func looseString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}

	return "", fmt.Errorf("not a scalar value: %w", ErrNotValid)
}
