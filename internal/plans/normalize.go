package plans

import (
	"strings"
)

// Normalize repairs a plan document in memory: trims and dedupes the custom
// types list, coerces day state, collapses duplicate session refs, and
// recomputes the per-day session counters. It never touches storage and is
// idempotent, so every load/save path can run it unconditionally.
func Normalize(plan WeeklyPlan) WeeklyPlan {
	out := clonePlan(plan)

	out.CustomTypes = normalizeTypeNames(out.CustomTypes)

	if out.Benchmarks == nil {
		out.Benchmarks = make(map[string]int, len(out.CustomTypes))
	}
	for _, t := range out.CustomTypes {
		if _, ok := out.Benchmarks[t]; !ok {
			out.Benchmarks[t] = 0
		}
	}

	if out.TypeCategories == nil {
		out.TypeCategories = make(map[string]Category)
	}
	for t, cat := range out.TypeCategories {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" || !cat.IsValid() {
			delete(out.TypeCategories, t)
			continue
		}
		if trimmed != t {
			delete(out.TypeCategories, t)
			out.TypeCategories[trimmed] = cat
		}
	}

	for i := range out.Days {
		normalizeDay(&out.Days[i])
	}

	return out
}

func normalizeTypeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cleaned = append(cleaned, name)
	}
	return cleaned
}

func normalizeDay(day *WeeklyDay) {
	if day.Types == nil {
		day.Types = make(TypeFlags)
	}
	for name, on := range day.Types {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			delete(day.Types, name)
			continue
		}
		if trimmed != name {
			delete(day.Types, name)
			day.Types[trimmed] = on || day.Types[trimmed]
		}
	}

	day.SessionsList = dedupRefs(day.SessionsList)

	// Legacy documents carry a bare counter with no refs list; keep their
	// counter, otherwise the list is the truth.
	if len(day.SessionsList) > 0 || day.Sessions < 0 {
		day.Sessions = len(day.SessionsList)
	}

	for k, v := range day.Comments {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			delete(day.Comments, k)
		}
	}
	if len(day.Comments) == 0 {
		day.Comments = nil
	}
}

// dedupRefs keeps the first occurrence: refs with ids collide on id, id-less
// refs collide on their serialized type list.
func dedupRefs(refs []SessionRef) []SessionRef {
	if refs == nil {
		return []SessionRef{}
	}
	seen := make(map[string]bool, len(refs))
	out := make([]SessionRef, 0, len(refs))
	for _, ref := range refs {
		key := "id::" + ref.ID
		if ref.ID == "" {
			key = "types::" + strings.Join(ref.SessionTypes, "\x00")
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}

func clonePlan(plan WeeklyPlan) WeeklyPlan {
	out := plan
	out.CustomTypes = append([]string(nil), plan.CustomTypes...)
	out.Benchmarks = cloneIntMap(plan.Benchmarks)
	out.TypeCategories = cloneCategoryMap(plan.TypeCategories)
	out.Days = make([]WeeklyDay, len(plan.Days))
	for i, day := range plan.Days {
		outDay := day
		outDay.Types = make(TypeFlags, len(day.Types))
		for k, v := range day.Types {
			outDay.Types[k] = v
		}
		outDay.SessionsList = make([]SessionRef, len(day.SessionsList))
		for j, ref := range day.SessionsList {
			refCopy := ref
			refCopy.SessionTypes = append([]string(nil), ref.SessionTypes...)
			outDay.SessionsList[j] = refCopy
		}
		if day.Comments != nil {
			outDay.Comments = make(map[string]string, len(day.Comments))
			for k, v := range day.Comments {
				outDay.Comments[k] = v
			}
		}
		out.Days[i] = outDay
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCategoryMap(m map[string]Category) map[string]Category {
	if m == nil {
		return nil
	}
	out := make(map[string]Category, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
