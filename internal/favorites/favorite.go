package favorites

import (
	"fmt"
	"strings"
	"time"
)

const (
	ItemTypeRoutine  = "routine"
	ItemTypeExercise = "exercise"
)

// Favorite marks one starred item (a saved routine or a single exercise)
// for the account.
type Favorite struct {
	ItemType  string    `json:"itemType"`
	ItemID    string    `json:"itemId"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Key identifies a favorite across the cache, the store and the wire.
func (f Favorite) Key() string {
	return f.ItemType + "::" + f.ItemID
}

func (f Favorite) Validate() error {
	if f.ItemType != ItemTypeRoutine && f.ItemType != ItemTypeExercise {
		return fmt.Errorf("favorite item type must be %q or %q", ItemTypeRoutine, ItemTypeExercise)
	}
	if strings.TrimSpace(f.ItemID) == "" {
		return fmt.Errorf("favorite item id is required")
	}
	return nil
}
