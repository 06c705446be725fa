package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
	"github.com/fco71/myworkoutapp/pkg"
)

type sessionsRepo interface {
	Get(ctx context.Context, accountID, id string) (*Session, error)
	Delete(ctx context.Context, accountID, id string) error
	List(ctx context.Context, accountID string, params ListParams) ([]Session, int, error)
}

// refsCleaner removes a deleted session's ref from the weekly plan that
// covers its date.
type refsCleaner interface {
	RemoveSessionRef(ctx context.Context, accountID, dateISO, sessionID string) error
}

type Handler struct {
	repo      sessionsRepo
	refs      refsCleaner
	accountID string
}

func NewHandler(repo sessionsRepo, refs refsCleaner, accountID string) *Handler {
	return &Handler{
		repo:      repo,
		refs:      refs,
		accountID: accountID,
	}
}

type listResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	vars := mux.Vars(r)

	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid page: %s", vars["page"]), http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid size: %s", vars["size"]), http.StatusBadRequest)
		return
	}
	if page < 1 || size < 1 {
		http.Error(w, "page and size must be greater than 0", http.StatusBadRequest)
		return
	}

	list, total, err := handler.repo.List(ctx, handler.accountID, ListParams{Page: page, Size: size})
	if err != nil {
		log.Errorf("list sessions: %s", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	resp, err := json.Marshal(listResponse{Sessions: list, Total: total})
	if err != nil {
		log.Errorf("marshal sessions list: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resp)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	id := mux.Vars(r)["id"]
	session, err := handler.repo.Get(ctx, handler.accountID, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("get session %s: %s", id, err)
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}

	resp, err := json.Marshal(session)
	if err != nil {
		log.Errorf("marshal session: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resp)
}

// HandleDelete removes a session from the log and prunes its ref from the
// weekly plan covering its date. A failed ref cleanup does not undo the
// delete; the plan heals on the next rebuild.
func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	session, err := handler.repo.Get(ctx, handler.accountID, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete session %s, lookup: %s", id, err)
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Delete(ctx, handler.accountID, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete session %s: %s", id, err)
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}

	if err := handler.refs.RemoveSessionRef(ctx, handler.accountID, session.DateISO, id); err != nil {
		log.Errorf("delete session %s, prune plan ref: %s", id, err)
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.Text, []byte("deleted:"+id))
}
