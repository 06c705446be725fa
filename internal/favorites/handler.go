package favorites

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
	"github.com/fco71/myworkoutapp/pkg"
)

type Handler struct {
	synchronizer *Synchronizer
	cache        *Cache
	accountID    string
}

func NewHandler(synchronizer *Synchronizer, cache *Cache, accountID string) *Handler {
	return &Handler{
		synchronizer: synchronizer,
		cache:        cache,
		accountID:    accountID,
	}
}

type toggleResponse struct {
	State     ToggleState `json:"state"`
	Favorites []Favorite  `json:"favorites"`
}

// HandleToggle flips one favorite. The response carries the settled view,
// which on a rollback equals the view from before the toggle.
func (handler *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.favorites.toggle")
	defer span.End()

	var f Favorite
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := f.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := handler.synchronizer.Toggle(ctx, handler.accountID, f)
	if err != nil {
		log.Errorf("toggle favorite %s: %s", f.Key(), err)
		http.Error(w, "failed to toggle favorite", http.StatusInternalServerError)
		return
	}

	writeJSON(w, toggleResponse{State: state, Favorites: handler.cache.Snapshot()})
}

// HandleList returns the current favorites view.
func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.favorites.list")
	defer span.End()

	writeJSON(w, handler.cache.Snapshot())
}

func writeJSON(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("marshal favorites response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, data)
}
