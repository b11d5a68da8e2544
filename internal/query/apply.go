package query

import "github.com/lehigh-university-libraries/lifeindex/internal/models"

// Apply returns the items that match filter, in their original order. It
// never returns or modifies the input slice.
func Apply(items []models.Item, filter models.Filter) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if filter.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}

// CategoryCount is the number of items in one category.
type CategoryCount struct {
	Category string `json:"category" yaml:"category"`
	Count    int    `json:"count" yaml:"count"`
}

// Categories counts items per category. The known vocabulary comes first in
// its usual order, followed by any other stored categories in the order
// they first appear. Categories with no items are left out.
func Categories(items []models.Item) []CategoryCount {
	counts := make(map[string]int)
	var extra []string
	for _, item := range items {
		if _, seen := counts[item.Category]; !seen && !isKnown(item.Category) {
			extra = append(extra, item.Category)
		}
		counts[item.Category]++
	}

	var out []CategoryCount
	for _, category := range models.Categories {
		if n := counts[category]; n > 0 {
			out = append(out, CategoryCount{Category: category, Count: n})
		}
	}
	for _, category := range extra {
		out = append(out, CategoryCount{Category: category, Count: counts[category]})
	}
	return out
}

func isKnown(category string) bool {
	for _, known := range models.Categories {
		if category == known {
			return true
		}
	}
	return false
}
