package records

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/httpapi"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Dispatcher is satisfied by *command.Bus.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) error
}

// Reader is satisfied by *Service.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Activity(ctx context.Context, recordID uuid.UUID) ([]Activity, error)
}

type createRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Routes mounts the records API. The router must already sit behind the
// tenant middleware.
func Routes(bus Dispatcher, reader Reader, onError tenant.ErrorHandler) chi.Router {
	h := &handlers{bus: bus, reader: reader, fail: onError}

	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/activity", h.activity)
	return r
}

type handlers struct {
	bus    Dispatcher
	reader Reader
	fail   tenant.ErrorHandler
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := tenant.Current(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := CreateRecord{Tenant: id, RecordID: uuid.New(), Title: req.Title, Body: req.Body}
	if err := h.bus.Dispatch(r.Context(), cmd); err != nil {
		h.fail(w, r, ClientError(err))
		return
	}

	rec, err := h.reader.Get(r.Context(), cmd.RecordID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+rec.ID.String())
	httpapi.JSON(w, http.StatusCreated, rec)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr := httpapi.NewValidationError()
			verr.Add("limit", "must be a positive integer")
			h.fail(w, r, verr)
			return
		}
		limit = n
	}

	recs, err := h.reader.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []Record{}
	}
	httpapi.JSONWithMeta(w, http.StatusOK, recs, map[string]any{"count": len(recs)})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rec)
}

func (h *handlers) activity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	items, err := h.reader.Activity(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Activity{}
	}
	httpapi.JSON(w, http.StatusOK, items)
}

// recordID answers 404 for malformed ids so they look like any other
// unknown record.
func (h *handlers) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || id == uuid.Nil {
		h.fail(w, r, dbsession.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// ClientError maps command failures the caller can fix to HTTP errors and
// passes everything else through.
func ClientError(err error) error {
	verr := httpapi.NewValidationError()
	switch {
	case errors.Is(err, ErrRecordIDRequired):
		verr.Add("record_id", "is required")
	case errors.Is(err, ErrTitleRequired):
		verr.Add("title", "is required")
	case errors.Is(err, ErrTitleTooLong):
		verr.Add("title", "must be at most "+strconv.Itoa(MaxTitleLength)+" characters")
	case errors.Is(err, ErrDuplicate):
		return httpapi.ErrConflict
	default:
		return err
	}
	return verr
}
