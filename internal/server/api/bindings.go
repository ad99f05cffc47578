package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// BindingHandler handles HTTP requests for sign bindings.
type BindingHandler struct {
	store      *store.Store
	plugins    *plugin.Manager
	vocabulary classifier.Vocabulary
}

// NewBindingHandler creates a BindingHandler. When plugins is nil the
// plugin and action names are not checked; when vocabulary is empty any
// sign is accepted.
func NewBindingHandler(s *store.Store, plugins *plugin.Manager, vocabulary classifier.Vocabulary) *BindingHandler {
	return &BindingHandler{store: s, plugins: plugins, vocabulary: vocabulary}
}

// ServeHTTP routes /api/bindings and /api/bindings/{id}.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/api/bindings")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createBindingRequest struct {
	Sign       string          `json:"sign"`
	PluginName string          `json:"plugin"`
	ActionName string          `json:"action"`
	Config     json.RawMessage `json:"config"`
}

type updateBindingRequest struct {
	Sign       string          `json:"sign"`
	PluginName string          `json:"plugin"`
	ActionName string          `json:"action"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type bindingResponse struct {
	ID         string          `json:"id"`
	Sign       string          `json:"sign"`
	PluginName string          `json:"plugin"`
	ActionName string          `json:"action"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  string          `json:"created_at"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

func toBindingResponse(b *store.Binding) bindingResponse {
	config := b.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	return bindingResponse{
		ID:         b.ID,
		Sign:       b.Sign,
		PluginName: b.PluginName,
		ActionName: b.ActionName,
		Config:     config,
		Enabled:    b.Enabled,
		CreatedAt:  b.CreatedAt.Format(timeLayout),
	}
}

// validate checks the sign against the vocabulary and the plugin action
// against the discovered plugins. It returns a client-facing message.
func (h *BindingHandler) validate(sign, pluginName, actionName string) string {
	if len(h.vocabulary) > 0 && !h.vocabulary.Contains(sign) {
		return "Unknown sign"
	}
	if h.plugins == nil {
		return ""
	}
	switch _, err := h.plugins.Lookup(pluginName, actionName); {
	case errors.Is(err, plugin.ErrPluginNotFound):
		return "Unknown plugin"
	case err != nil:
		return "Unknown action"
	}
	return ""
}

// conflicts reports whether a binding other than id already owns sign.
func (h *BindingHandler) conflicts(sign, id string) (bool, error) {
	existing, err := h.store.Bindings().GetBySign(sign)
	if err != nil {
		return false, err
	}
	return existing != nil && existing.ID != id, nil
}

// list handles GET /api/bindings.
func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}

	response := listBindingsResponse{
		Bindings: make([]bindingResponse, 0, len(bindings)),
	}
	for _, b := range bindings {
		response.Bindings = append(response.Bindings, toBindingResponse(b))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/bindings/{id}.
func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// create handles POST /api/bindings.
func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch {
	case req.Sign == "":
		writeError(w, http.StatusBadRequest, "sign is required")
		return
	case req.PluginName == "":
		writeError(w, http.StatusBadRequest, "plugin is required")
		return
	case req.ActionName == "":
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if msg := h.validate(req.Sign, req.PluginName, req.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	taken, err := h.conflicts(req.Sign, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check existing binding")
		return
	}
	if taken {
		writeError(w, http.StatusConflict, "Sign is already bound")
		return
	}

	b := &store.Binding{
		Sign:       req.Sign,
		PluginName: req.PluginName,
		ActionName: req.ActionName,
		Config:     req.Config,
		Enabled:    true,
	}
	if err := h.store.Bindings().Create(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}

	writeJSON(w, http.StatusCreated, toBindingResponse(b))
}

// update handles PUT /api/bindings/{id}. Omitted fields keep their value.
func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	var req updateBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Sign != "" {
		b.Sign = req.Sign
	}
	if req.PluginName != "" {
		b.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		b.ActionName = req.ActionName
	}
	if req.Config != nil {
		b.Config = req.Config
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}

	if msg := h.validate(b.Sign, b.PluginName, b.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	taken, err := h.conflicts(b.Sign, b.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check existing binding")
		return
	}
	if taken {
		writeError(w, http.StatusConflict, "Sign is already bound")
		return
	}

	if err := h.store.Bindings().Update(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// delete handles DELETE /api/bindings/{id}.
func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Bindings().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
