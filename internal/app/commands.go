package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/httpapi"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// NewCommandRegistry whitelists the commands callers may send by name.
func NewCommandRegistry() (*command.Registry, error) {
	reg := command.NewRegistry()
	if err := command.Register[records.CreateRecord](reg, records.CommandCreateRecord); err != nil {
		return nil, err
	}
	return reg, nil
}

// namedCommand builds the command named in the path from the request body
// and dispatches it. The payload declares its tenant, and the bus refuses
// any tenant other than the caller's.
func namedCommand(reg *command.Registry, bus records.Dispatcher, onError tenant.ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := httpapi.DecodeJSON(w, r, &payload); err != nil {
			onError(w, r, err)
			return
		}

		cmd, err := reg.Build(chi.URLParam(r, "name"), payload)
		switch {
		case errors.Is(err, command.ErrUnknownCommand):
			onError(w, r, httpapi.ErrNotFound)
			return
		case err != nil:
			verr := httpapi.NewValidationError()
			verr.Add("payload", "does not decode to the named command")
			onError(w, r, errors.Join(verr, err))
			return
		}

		if err := bus.Dispatch(r.Context(), cmd); err != nil {
			onError(w, r, records.ClientError(err))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
