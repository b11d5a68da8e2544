package models

import (
	"reflect"
	"testing"
)

func TestTagsAddRemoveKeepsLaterDuplicate(t *testing.T) {
	tags := Tags{}
	tags = tags.Add("a")
	tags = tags.Add("a")
	tags = tags.Remove("a")

	if !reflect.DeepEqual(tags, Tags{"a"}) {
		t.Errorf("Expected [a], got %v", tags)
	}
}

func TestTagsRemove(t *testing.T) {
	tests := []struct {
		name     string
		tags     Tags
		remove   string
		expected Tags
	}{
		{
			name:     "removes first occurrence only",
			tags:     Tags{"x", "blue", "y", "blue"},
			remove:   "blue",
			expected: Tags{"x", "y", "blue"},
		},
		{
			name:     "missing tag leaves sequence unchanged",
			tags:     Tags{"x", "y"},
			remove:   "z",
			expected: Tags{"x", "y"},
		},
		{
			name:     "match is exact",
			tags:     Tags{"Blue"},
			remove:   "blue",
			expected: Tags{"Blue"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.tags.Remove(tt.remove)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestTagsAddDoesNotAliasReceiver(t *testing.T) {
	base := make(Tags, 1, 4)
	base[0] = "a"

	first := base.Add("b")
	second := base.Add("c")

	if first[1] != "b" || second[1] != "c" {
		t.Errorf("Expected independent sequences, got %v and %v", first, second)
	}
}

func TestTagsEncodeDecode(t *testing.T) {
	tags := Tags{"with,comma", "dup", "dup"}

	raw, err := tags.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeTags(raw)
	if err != nil {
		t.Fatalf("DecodeTags: %v", err)
	}
	if !reflect.DeepEqual(decoded, tags) {
		t.Errorf("Expected %v, got %v", tags, decoded)
	}

	empty, err := DecodeTags("")
	if err != nil {
		t.Fatalf("DecodeTags empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil tags, got %#v", empty)
	}

	if _, err := DecodeTags("not json"); err == nil {
		t.Error("Expected error for malformed tags column")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"clothes", CategoryClothes},
		{"  BOOKS ", CategoryBooks},
		{"Electronics", CategoryElectronics},
		{"furniture", CategoryUncategorized},
		{"", CategoryUncategorized},
		{"All", CategoryUncategorized},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCategory(tt.input); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	shirt := Item{Title: "Blue Shirt", Category: CategoryClothes, Tags: Tags{"cotton", "summer"}}

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"zero filter matches", Filter{}, true},
		{"all sentinel matches", Filter{Category: "all"}, true},
		{"category contains ignoring case", Filter{Category: "cloth"}, true},
		{"other category rejects", Filter{Category: CategoryTools}, false},
		{"title substring", Filter{SearchText: "BLUE"}, true},
		{"tag substring", Filter{SearchText: "summ"}, true},
		{"no text match", Filter{SearchText: "red"}, false},
		{"category and text compose", Filter{Category: CategoryClothes, SearchText: "cotton"}, true},
		{"category passes text fails", Filter{Category: CategoryClothes, SearchText: "wool"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(shirt); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
