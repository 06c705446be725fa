package sessions

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ManualIDPrefix marks placeholder ("manual") session ids on the wire.
// Older clients know placeholders only by this prefix, so it is kept
// as the id format even though the Manual flag is the authority here.
const ManualIDPrefix = "manual-"

func NewManualID() string {
	return ManualIDPrefix + uuid.NewString()
}

func IsManualID(id string) bool {
	return strings.HasPrefix(id, ManualIDPrefix)
}

// Session is a single completed workout in the session log. Real sessions
// are immutable once completed; manual (placeholder) sessions exist only to
// keep a checkbox-only day backed by a log entry and stay mutable until a
// real session covers that day.
type Session struct {
	ID               string     `json:"id"`
	DateISO          string     `json:"dateISO"`
	SessionName      string     `json:"sessionName"`
	SessionTypes     []string   `json:"sessionTypes"`
	Exercises        []Exercise `json:"exercises"`
	CompletedAt      time.Time  `json:"completedAt"`
	DurationSec      int        `json:"durationSec"`
	SourceTemplateID string     `json:"sourceTemplateId,omitempty"`
	Manual           bool       `json:"manual,omitempty"`
}

type Exercise struct {
	Name string `json:"name"`
	Sets []Set  `json:"sets"`
}

type Set struct {
	Reps  int     `json:"reps"`
	Kilos float64 `json:"kilos"`
}
