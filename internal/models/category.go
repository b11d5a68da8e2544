package models

import "strings"

// Category vocabulary. CategoryAll is only meaningful in a Filter.
const (
	CategoryClothes       = "Clothes"
	CategoryTools         = "Tools"
	CategoryElectronics   = "Electronics"
	CategoryBooks         = "Books"
	CategoryOther         = "Other"
	CategoryUncategorized = "Uncategorized"

	CategoryAll = "All"
)

// Categories lists the assignable categories in display order.
var Categories = []string{
	CategoryClothes,
	CategoryTools,
	CategoryElectronics,
	CategoryBooks,
	CategoryOther,
	CategoryUncategorized,
}

// NormalizeCategory maps a free-form value onto the vocabulary. Matching
// ignores case and surrounding space; anything else is Uncategorized.
func NormalizeCategory(value string) string {
	value = strings.TrimSpace(value)
	for _, c := range Categories {
		if strings.EqualFold(c, value) {
			return c
		}
	}
	return CategoryUncategorized
}
