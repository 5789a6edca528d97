package records

import "sort"

// CategoryCount is the number of distinct review bodies filed under one
// category.
type CategoryCount struct {
	Category      string `json:"category"`
	UniqueReviews int    `json:"unique_review_count"`
}

// CategoryCounts counts distinct review texts per category, most reviewed
// first and ties by name. A row with several categories counts toward each.
func CategoryCounts(rows []Row) []CategoryCount {
	texts := make(map[string]map[string]struct{})
	for _, r := range rows {
		for _, c := range r.Categories {
			set, ok := texts[c]
			if !ok {
				set = make(map[string]struct{})
				texts[c] = set
			}
			set[r.Text] = struct{}{}
		}
	}

	counts := make([]CategoryCount, 0, len(texts))
	for c, set := range texts {
		counts = append(counts, CategoryCount{Category: c, UniqueReviews: len(set)})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].UniqueReviews != counts[j].UniqueReviews {
			return counts[i].UniqueReviews > counts[j].UniqueReviews
		}
		return counts[i].Category < counts[j].Category
	})
	return counts
}
