package models

import (
	"encoding/json"
	"fmt"
)

// Tags is an ordered tag sequence. Duplicates are allowed and order is kept.
type Tags []string

// Add appends tag to the end of the sequence, even if it is already present.
func (t Tags) Add(tag string) Tags {
	out := make(Tags, 0, len(t)+1)
	out = append(out, t...)
	return append(out, tag)
}

// Remove drops the first occurrence of tag. Later duplicates are kept.
func (t Tags) Remove(tag string) Tags {
	for i, existing := range t {
		if existing == tag {
			out := make(Tags, 0, len(t)-1)
			out = append(out, t[:i]...)
			return append(out, t[i+1:]...)
		}
	}
	return t.Clone()
}

// Clone returns a copy backed by fresh storage.
func (t Tags) Clone() Tags {
	if t == nil {
		return Tags{}
	}
	out := make(Tags, len(t))
	copy(out, t)
	return out
}

// Encode serializes the sequence for the tags column.
func (t Tags) Encode() (string, error) {
	if t == nil {
		t = Tags{}
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

// DecodeTags parses a tags column value. An empty column is an empty sequence.
func DecodeTags(raw string) (Tags, error) {
	if raw == "" {
		return Tags{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags %q: %w", raw, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return Tags(tags), nil
}
