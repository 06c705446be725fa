package plans

import "sort"

// TypeProgress is one workout type measured against its weekly goal.
type TypeProgress struct {
	Type     string   `json:"type"`
	Category Category `json:"category,omitempty"`
	Goal     int      `json:"goal"`
	Done     int      `json:"done"`
}

// CategoryProgress counts days on which at least one type of the category
// was checked. It is derived from the type grid on every read and never
// written back to any checkbox.
type CategoryProgress struct {
	Category Category `json:"category"`
	Done     int      `json:"done"`
}

type ProgressReport struct {
	WeekOfISO  string             `json:"weekOfISO"`
	Types      []TypeProgress     `json:"types"`
	Categories []CategoryProgress `json:"categories"`
}

// Progress derives the benchmark report for a week: per-type done counts
// against goals, plus per-category day counts.
func Progress(plan WeeklyPlan) ProgressReport {
	plan = Normalize(plan)

	report := ProgressReport{
		WeekOfISO: plan.WeekOfISO,
		Types:     make([]TypeProgress, 0, len(plan.CustomTypes)),
	}

	for _, t := range plan.CustomTypes {
		done := 0
		for i := range plan.Days {
			if plan.Days[i].Types[t] {
				done++
			}
		}
		report.Types = append(report.Types, TypeProgress{
			Type:     t,
			Category: plan.TypeCategories[t],
			Goal:     plan.Benchmarks[t],
			Done:     done,
		})
	}

	catDays := make(map[Category]int)
	for i := range plan.Days {
		seen := make(map[Category]bool)
		for t, on := range plan.Days[i].Types {
			if !on {
				continue
			}
			cat := plan.TypeCategories[t]
			if cat == CategoryNone || seen[cat] {
				continue
			}
			seen[cat] = true
			catDays[cat]++
		}
	}
	for cat, done := range catDays {
		report.Categories = append(report.Categories, CategoryProgress{Category: cat, Done: done})
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})

	return report
}
