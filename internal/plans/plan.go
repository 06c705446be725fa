package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fco71/myworkoutapp/internal/sessions"
)

var ErrValidation = errors.New("plan validation failed")

// Category groups workout types for derived aggregate counts only;
// the checkbox grid itself never keys on categories.
type Category string

const (
	CategoryNone        Category = ""
	CategoryCardio      Category = "cardio"
	CategoryResistance  Category = "resistance"
	CategoryMindfulness Category = "mindfulness"
	CategorySkills      Category = "skills"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryNone, CategoryCardio, CategoryResistance, CategoryMindfulness, CategorySkills:
		return true
	default:
		return false
	}
}

// SessionRef points a day at a session log entry. Placeholder refs back
// checkbox-only days; real refs point at completed workouts. The manual id
// prefix is kept on the wire for older clients, but the flag is the authority.
type SessionRef struct {
	ID           string   `json:"id"`
	Placeholder  bool     `json:"placeholder,omitempty"`
	SessionTypes []string `json:"sessionTypes"`
}

func (ref *SessionRef) UnmarshalJSON(data []byte) error {
	type alias SessionRef
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*ref = SessionRef(a)
	if sessions.IsManualID(ref.ID) {
		ref.Placeholder = true
	}
	return nil
}

// TypeFlags is the per-day checkbox state. Legacy documents carry stringy
// or numeric values in this map, so decoding coerces them to booleans.
type TypeFlags map[string]bool

func (tf *TypeFlags) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	flags := make(TypeFlags, len(raw))
	for k, v := range raw {
		flags[k] = coerceBool(v)
	}
	*tf = flags
	return nil
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1" || val == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

type WeeklyDay struct {
	DateISO      string            `json:"dateISO"`
	Types        TypeFlags         `json:"types"`
	SessionsList []SessionRef      `json:"sessionsList"`
	Sessions     int               `json:"sessions"`
	Comments     map[string]string `json:"comments,omitempty"`
}

// RealSessionRef returns the first non-placeholder ref of the day, if any.
// Once a day has one, the checkbox grid is view-only for the session log.
func (d *WeeklyDay) RealSessionRef() *SessionRef {
	for i := range d.SessionsList {
		if !d.SessionsList[i].Placeholder {
			return &d.SessionsList[i]
		}
	}
	return nil
}

func (d *WeeklyDay) PlaceholderRefs() []SessionRef {
	var refs []SessionRef
	for _, ref := range d.SessionsList {
		if ref.Placeholder {
			refs = append(refs, ref)
		}
	}
	return refs
}

type WeeklyPlan struct {
	WeekOfISO string `json:"weekOfISO"`
	// WeekNumber is a display label recomputed by the history loader
	// on every load, never persisted as ground truth.
	WeekNumber     int                  `json:"weekNumber"`
	Days           []WeeklyDay          `json:"days"`
	Benchmarks     map[string]int       `json:"benchmarks"`
	CustomTypes    []string             `json:"customTypes"`
	TypeCategories map[string]Category  `json:"typeCategories"`
}

// DayIndex returns the index of the day with the given date, or -1.
func (p *WeeklyPlan) DayIndex(dateISO string) int {
	for i := range p.Days {
		if p.Days[i].DateISO == dateISO {
			return i
		}
	}
	return -1
}

// CheckedTypes returns the day's checked types, custom-types order first,
// then any stale checked keys in lexicographic order.
func (p *WeeklyPlan) CheckedTypes(dayIndex int) []string {
	day := &p.Days[dayIndex]
	checked := make([]string, 0, len(day.Types))
	seen := make(map[string]bool, len(day.Types))
	for _, t := range p.CustomTypes {
		if day.Types[t] {
			checked = append(checked, t)
			seen[t] = true
		}
	}
	var stale []string
	for t, on := range day.Types {
		if on && !seen[t] {
			stale = append(stale, t)
		}
	}
	sortStrings(stale)
	return append(checked, stale...)
}

// Validate rejects malformed plans before any persistence attempt.
func (p *WeeklyPlan) Validate() error {
	if _, err := time.Parse(DateLayout, p.WeekOfISO); err != nil {
		return fmt.Errorf("%w: bad weekOfISO %q", ErrValidation, p.WeekOfISO)
	}
	if len(p.Days) != 7 {
		return fmt.Errorf("%w: plan must have exactly 7 days, got %d", ErrValidation, len(p.Days))
	}
	seenDates := make(map[string]bool, 7)
	for i := range p.Days {
		wantDate, err := AddDaysISO(p.WeekOfISO, i)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err)
		}
		if p.Days[i].DateISO != wantDate {
			return fmt.Errorf(
				"%w: day %d has date %q, want %q",
				ErrValidation, i, p.Days[i].DateISO, wantDate,
			)
		}
		if seenDates[p.Days[i].DateISO] {
			return fmt.Errorf("%w: duplicate day date %q", ErrValidation, p.Days[i].DateISO)
		}
		seenDates[p.Days[i].DateISO] = true
	}
	return nil
}

// NewDefaultPlan creates an empty plan for the given week start date.
func NewDefaultPlan(weekOfISO string) WeeklyPlan {
	plan := WeeklyPlan{
		WeekOfISO:      weekOfISO,
		WeekNumber:     1,
		Days:           make([]WeeklyDay, 7),
		Benchmarks:     make(map[string]int),
		CustomTypes:    []string{},
		TypeCategories: make(map[string]Category),
	}
	for i := range plan.Days {
		dateISO, _ := AddDaysISO(weekOfISO, i)
		plan.Days[i] = WeeklyDay{
			DateISO:      dateISO,
			Types:        make(TypeFlags),
			SessionsList: []SessionRef{},
		}
	}
	return plan
}
