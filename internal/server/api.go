package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/compiler"
	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/lifecycle"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/render"
	"github.com/livetemplate/blockpress/internal/store"
	"github.com/livetemplate/blockpress/internal/tree"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// defaultPageLimit is the default pagination limit when none is specified
const defaultPageLimit = 100

// APIHandler serves the document and component REST API.
type APIHandler struct {
	docs     *lifecycle.Service
	registry *registry.Registry
	compiler *compiler.Compiler
	renderer *render.Renderer
	debug    bool
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(docs *lifecycle.Service, reg *registry.Registry, comp *compiler.Compiler, renderer *render.Renderer, debug bool) *APIHandler {
	return &APIHandler{
		docs:     docs,
		registry: reg,
		compiler: comp,
		renderer: renderer,
		debug:    debug,
	}
}

// Register adds the API routes to mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.createDocument)
	mux.HandleFunc("GET /api/documents", h.listDocuments)
	mux.HandleFunc("GET /api/documents/{id}", h.getDocument)
	mux.HandleFunc("PATCH /api/documents/{id}", h.patchDocument)
	mux.HandleFunc("POST /api/documents/{id}/publish", h.publish)
	mux.HandleFunc("GET /api/documents/{id}/versions", h.listVersions)
	mux.HandleFunc("GET /api/documents/{id}/versions/{version}", h.getVersion)
	mux.HandleFunc("GET /api/documents/{id}/render", h.renderDocument)
	mux.HandleFunc("POST /api/documents/{id}/import", h.importMarkdown)

	mux.HandleFunc("GET /api/components", h.listComponents)
	mux.HandleFunc("POST /api/components", h.createComponent)
	mux.HandleFunc("POST /api/components/check", h.checkComponent)
	mux.HandleFunc("GET /api/components/{key}", h.getComponent)
	mux.HandleFunc("PUT /api/components/{key}", h.updateComponent)
	mux.HandleFunc("DELETE /api/components/{key}", h.deleteComponent)
}

// documentResponse is a document together with its lifecycle state.
type documentResponse struct {
	*store.Document
	State lifecycle.State `json:"state"`
}

func (h *APIHandler) documentResponse(r *http.Request, doc *store.Document) documentResponse {
	state, err := h.docs.State(r.Context(), doc.ID)
	if err != nil {
		log.Printf("[API] Failed to read state of %s: %v", doc.ID, err)
	}
	return documentResponse{Document: doc, State: state}
}

func (h *APIHandler) createDocument(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	doc, err := h.docs.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.documentResponse(r, doc))
}

func (h *APIHandler) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultPageLimit)
	offset := parseIntParam(r, "offset", 0)

	docs, err := h.docs.List(r.Context(), store.ListOptions{
		Query:  r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   docs,
		"count":  len(docs),
		"offset": offset,
		"limit":  limit,
	})
}

func (h *APIHandler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.documentResponse(r, doc))
}

func (h *APIHandler) patchDocument(w http.ResponseWriter, r *http.Request) {
	var p lifecycle.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Empty() {
		writeError(w, blockpress.Errorf(blockpress.CodeInvalidInput, "api.patch", "patch changes nothing"))
		return
	}
	doc, err := h.docs.Patch(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.documentResponse(r, doc))
}

func (h *APIHandler) publish(w http.ResponseWriter, r *http.Request) {
	res, err := h.docs.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// versionSummary lists a version without its content.
type versionSummary struct {
	Version   int       `json:"version"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *APIHandler) listVersions(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := h.docs.ListVersions(r.Context(), doc.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionSummary{
			Version:   v.Version,
			URL:       h.docs.PublicURL(doc.Slug, v.Version),
			CreatedAt: v.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *APIHandler) getVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		writeError(w, blockpress.Errorf(blockpress.CodeInvalidInput, "api.get_version", "version must be a number"))
		return
	}
	v, err := h.docs.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// renderResponse is the output of the render endpoint.
type renderResponse struct {
	Mode        render.Mode         `json:"mode"`
	Version     int                 `json:"version,omitempty"`
	Tree        *element.Element    `json:"tree"`
	HTML        string              `json:"html"`
	Resolutions []render.Resolution `json:"resolutions"`
}

// renderDocument renders the draft, or a published version when the version
// query parameter is set.
func (h *APIHandler) renderDocument(w http.ResponseWriter, r *http.Request) {
	const op = "api.render"
	mode, ok := render.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, blockpress.Errorf(blockpress.CodeInvalidInput, op, "unknown mode %q", r.URL.Query().Get("mode")).
			WithHint("use mode=editable or mode=public"))
		return
	}

	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	content := doc.DraftContent
	resp := renderResponse{Mode: mode}
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, blockpress.Errorf(blockpress.CodeInvalidInput, op, "version must be a number"))
			return
		}
		v, err := h.docs.GetVersion(r.Context(), doc.ID, n)
		if err != nil {
			writeError(w, err)
			return
		}
		content = v.Content
		resp.Version = v.Version
	}

	el, resolutions := h.renderer.Render(content, render.Context{Mode: mode})
	if mode == render.ModePublic {
		resp.HTML, err = h.renderer.PublicHTML(el)
	} else {
		resp.HTML, err = render.HTML(el)
	}
	if err != nil {
		writeError(w, blockpress.Wrap(blockpress.CodeInternal, op, err))
		return
	}
	if resolutions == nil {
		resolutions = []render.Resolution{}
	}
	resp.Tree = el
	resp.Resolutions = resolutions
	writeJSON(w, http.StatusOK, resp)
}

// importMarkdown replaces the draft with a tree converted from the markdown
// request body. A frontmatter title replaces a document still titled
// "Untitled".
func (h *APIHandler) importMarkdown(w http.ResponseWriter, r *http.Request) {
	const op = "api.import"
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	src, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, blockpress.Wrap(blockpress.CodeInvalidInput, op, err))
		return
	}

	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	imp, err := tree.FromMarkdown(src)
	if err != nil {
		writeError(w, blockpress.Wrap(blockpress.CodeInvalidInput, op, err))
		return
	}

	patch := lifecycle.Patch{SetDraft: true, DraftContent: imp.Root}
	if imp.Title != "" && doc.Title == "Untitled" {
		patch.Title = &imp.Title
	}
	doc, err = h.docs.Patch(r.Context(), doc.ID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.debug {
		log.Printf("[API] Imported %d nodes into %s", tree.Size(imp.Root), doc.Slug)
	}
	writeJSON(w, http.StatusOK, h.documentResponse(r, doc))
}

func (h *APIHandler) listComponents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	defs := h.registry.List(registry.Filter{
		Origin:   registry.Origin(q.Get("origin")),
		Category: q.Get("category"),
		Query:    q.Get("q"),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       defs,
		"count":      len(defs),
		"generation": h.registry.Generation(),
	})
}

func (h *APIHandler) getComponent(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	def, ok := h.registry.Lookup(key)
	if !ok {
		writeError(w, blockpress.Errorf(blockpress.CodeNotFound, "api.component", "component %q not found", key))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// createComponent registers a custom component and persists its source. The
// registration is rolled back when the store rejects it.
func (h *APIHandler) createComponent(w http.ResponseWriter, r *http.Request) {
	var src registry.CustomSource
	if !decodeJSON(w, r, &src) {
		return
	}
	def, err := h.registry.RegisterCustom(src)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.docs.Store().SaveComponent(r.Context(), def.Source()); err != nil {
		if rerr := h.registry.RemoveCustom(def.Key); rerr != nil {
			log.Printf("[API] Failed to roll back component %s: %v", def.Key, rerr)
		}
		writeError(w, err)
		return
	}
	log.Printf("[API] Registered component %s", def.Key)
	writeJSON(w, http.StatusCreated, def)
}

func (h *APIHandler) updateComponent(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_component"
	var src registry.CustomSource
	if !decodeJSON(w, r, &src) {
		return
	}
	key := r.PathValue("key")
	if src.Key != "" && src.Key != key {
		writeError(w, blockpress.Errorf(blockpress.CodeInvalidInput, op, "body key %q does not match %q", src.Key, key))
		return
	}
	src.Key = key

	previous, existed := h.registry.Lookup(key)
	def, err := h.registry.UpdateCustom(src)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.docs.Store().SaveComponent(r.Context(), def.Source()); err != nil {
		if existed {
			if _, rerr := h.registry.PutCustom(previous.Source()); rerr != nil {
				log.Printf("[API] Failed to restore component %s: %v", key, rerr)
			}
		}
		writeError(w, err)
		return
	}
	log.Printf("[API] Updated component %s", def.Key)
	writeJSON(w, http.StatusOK, def)
}

func (h *APIHandler) deleteComponent(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.registry.RemoveCustom(key); err != nil {
		writeError(w, err)
		return
	}
	if err := h.docs.Store().DeleteComponent(r.Context(), key); err != nil && !errors.Is(err, blockpress.ErrNotFound) {
		writeError(w, err)
		return
	}
	log.Printf("[API] Removed component %s", key)
	w.WriteHeader(http.StatusNoContent)
}

// checkResponse reports the outcome of a compile check.
type checkResponse struct {
	OK    bool                   `json:"ok"`
	Error *compiler.CompileError `json:"error,omitempty"`
	Code  blockpress.Code        `json:"code,omitempty"`
}

// checkComponent compiles source without registering it.
func (h *APIHandler) checkComponent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	err := h.compiler.Check(body.Code)
	if err == nil {
		writeJSON(w, http.StatusOK, checkResponse{OK: true})
		return
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusBadRequest, checkResponse{Error: ce, Code: ce.Code()})
		return
	}
	writeError(w, compiler.AsAPIError("api.check", err))
}

// Helper functions

// statusFor maps an error code to its HTTP status.
func statusFor(code blockpress.Code) int {
	switch code {
	case blockpress.CodeNotFound:
		return http.StatusNotFound
	case blockpress.CodeNoContent, blockpress.CodeDuplicateKey, blockpress.CodeConflict:
		return http.StatusConflict
	case blockpress.CodeCreateFailed:
		return http.StatusServiceUnavailable
	case blockpress.CodeValidation, blockpress.CodeInvalidCode, blockpress.CodeInvalidInput:
		return http.StatusBadRequest
	case blockpress.CodeInvalidTarget:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := blockpress.CodeOf(err)
	status := statusFor(code)
	body := errorBody{Error: err.Error(), Code: code}
	var e *blockpress.Error
	if errors.As(err, &e) {
		body.Hint = e.Hint
	}
	if status == http.StatusInternalServerError {
		log.Printf("[API] Internal error: %v", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Error encoding error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Error encoding JSON response: %v", err)
	}
}

// decodeJSON reads a size-limited JSON body into v, writing an
// INVALID_INPUT error and returning false when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, blockpress.Wrap(blockpress.CodeInvalidInput, "api.decode", err).
			WithHint("the request body must be valid JSON"))
		return false
	}
	return true
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
