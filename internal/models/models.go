package models

import (
	"strings"
	"time"
)

// Item represents a committed catalog entry for one physical object
type Item struct {
	ID            int64     `json:"id" yaml:"id"`
	ImageLocation string    `json:"image_location" yaml:"image_location"`
	Title         string    `json:"title" yaml:"title"`
	Category      string    `json:"category" yaml:"category"`
	Tags          Tags      `json:"tags" yaml:"tags"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	AnalysisText  string    `json:"analysis_text,omitempty" yaml:"analysis_text,omitempty"`
}

// Draft is the editable, not yet persisted form of an Item during capture
type Draft struct {
	TempImagePath string  `json:"temp_image_path"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Tags          Tags    `json:"tags"`
	Confidence    float64 `json:"confidence"`
	AnalysisText  string  `json:"analysis_text,omitempty"`
}

// Clone returns a copy of the draft that shares no tag storage with d.
func (d Draft) Clone() Draft {
	d.Tags = d.Tags.Clone()
	return d
}

// Proposal is the metadata suggested by the assist pass for a captured image
type Proposal struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
}

// Filter selects which catalog items a browsing consumer sees
type Filter struct {
	Category   string `json:"category"`
	SearchText string `json:"search_text"`
}

// AllCategories reports whether the filter accepts every category.
func (f Filter) AllCategories() bool {
	return f.Category == "" || strings.EqualFold(f.Category, CategoryAll)
}

// Matches applies the category filter and then the free-text filter.
func (f Filter) Matches(item Item) bool {
	if !f.AllCategories() && !containsFold(item.Category, f.Category) {
		return false
	}
	if f.SearchText != "" && !item.MatchesText(f.SearchText) {
		return false
	}
	return true
}

// MatchesText reports whether the title or any tag contains text, ignoring case.
func (i Item) MatchesText(text string) bool {
	if containsFold(i.Title, text) {
		return true
	}
	for _, tag := range i.Tags {
		if containsFold(tag, text) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
