package types

import (
	"encoding/json"
	"strings"
)

// Tag is one problem classification label. Values outside the current set
// come from the single-type schema and are kept verbatim.
type Tag string

const (
	TagEnvironment Tag = "meio_ambiente"
	TagHealth      Tag = "saude"
	TagSafety      Tag = "seguranca"
	TagOther       Tag = "outros"
)

var AllTags = []Tag{TagEnvironment, TagHealth, TagSafety, TagOther}

func (t Tag) Known() bool {
	switch t {
	case TagEnvironment, TagHealth, TagSafety, TagOther:
		return true
	}
	return false
}

// TagSet is persisted as a comma-joined string.
type TagSet []Tag

// ParseTagSet splits a comma-joined string, trimming tokens and dropping
// empty and repeated ones.
func ParseTagSet(s string) TagSet {
	return NewTagSet(strings.Split(s, ","))
}

func NewTagSet(values []string) TagSet {
	out := make(TagSet, 0, len(values))
	seen := make(map[Tag]bool, len(values))
	for _, v := range values {
		tag := Tag(strings.TrimSpace(v))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func (s TagSet) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func (s TagSet) Contains(t Tag) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts both the comma string and a JSON array.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = ParseTagSet(joined)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewTagSet(list)
	return nil
}
