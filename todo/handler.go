package todo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/panyam/docauth"
)

// Handler exposes a Guard over HTTP. Every request must carry the caller's
// scoped credential as a bearer token.
//
//	POST   /{owner}/items            create
//	GET    /{owner}/items?filter=... query (all, active, completed)
//	GET    /{owner}/items/{id}       read
//	PUT    /{owner}/items/{id}       replace
//	DELETE /{owner}/items/{id}       delete
type Handler struct {
	Guard  *Guard
	Logger *slog.Logger
}

// RegisterRoutes adds the item routes to r
func (h *Handler) RegisterRoutes(r *mux.Router) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	r.HandleFunc("/{owner}/items", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/{owner}/items", h.handleQuery).Methods(http.MethodGet)
	r.HandleFunc("/{owner}/items/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/{owner}/items/{id}", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/{owner}/items/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	created, err := h.Guard.CreateItem(r.Context(), token, mux.Vars(r)["owner"], &item)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	filter, err := ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	items, err := h.Guard.QueryItems(r.Context(), token, mux.Vars(r)["owner"], filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []*Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	item, err := h.Guard.GetItem(r.Context(), token, vars["owner"], vars["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "not_found", "no such item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	vars := mux.Vars(r)
	item.ID = vars["id"]
	updated, err := h.Guard.UpdateItem(r.Context(), token, vars["owner"], &item)
	if err != nil {
		h.fail(w, err)
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "not_found", "no such item")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.Guard.DeleteItem(r.Context(), token, vars["owner"], vars["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := docauth.BearerToken(r)
	if err != nil {
		h.fail(w, err)
		return "", false
	}
	return token, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, docauth.ErrAuthorizationDenied) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="store"`)
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	h.Logger.Error("item store operation failed", "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
