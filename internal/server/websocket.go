package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/lifecycle"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/render"
	"github.com/livetemplate/blockpress/internal/transform"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Session actions.
const (
	ActionInsert      = "insert"
	ActionMove        = "move"
	ActionDuplicate   = "duplicate"
	ActionDelete      = "delete"
	ActionUpdateProps = "update_props"
	ActionSelect      = "select"
	ActionSave        = "save"

	ActionTree  = "tree"
	ActionError = "error"
)

// saveTimeout bounds the store write of a save action.
const saveTimeout = 10 * time.Second

// MessageEnvelope is one WebSocket message in either direction.
type MessageEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// target addresses a node by id or, when no id is given, by position.
type target struct {
	NodeID   tree.ID        `json:"nodeId,omitempty"`
	Position *tree.Position `json:"position,omitempty"`
}

type insertData struct {
	ParentID       tree.ID        `json:"parentId,omitempty"`
	ParentPosition *tree.Position `json:"parentPosition,omitempty"`
	AfterID        tree.ID        `json:"afterId,omitempty"` // insert as the next sibling of this node
	Index          *int           `json:"index,omitempty"`   // default: append
	ComponentKey   string         `json:"componentKey"`
	Props          map[string]any `json:"props,omitempty"`
}

type moveData struct {
	target
	Direction transform.Direction `json:"direction"`
}

type propsData struct {
	target
	Props map[string]any `json:"props"`
}

type selectData struct {
	NodeID tree.ID `json:"nodeId"`
	Panel  string  `json:"panel,omitempty"`
}

// treePayload is the data of a "tree" reply.
type treePayload struct {
	HTML        string              `json:"html"`
	Resolutions []render.Resolution `json:"resolutions"`
	Changed     bool                `json:"changed"`
	NodeID      tree.ID             `json:"nodeId,omitempty"`
	SelectedID  tree.ID             `json:"selectedId,omitempty"`
	Dirty       bool                `json:"dirty"`
	Saved       bool                `json:"saved,omitempty"`
}

// WebSocketHandler opens editing sessions on documents.
type WebSocketHandler struct {
	server   *Server
	docs     *lifecycle.Service
	registry *registry.Registry
	renderer *render.Renderer
	upgrader websocket.Upgrader
	debug    bool
}

// NewWebSocketHandler creates the editing session endpoint.
func NewWebSocketHandler(server *Server, docs *lifecycle.Service, reg *registry.Registry, renderer *render.Renderer, checkOrigin func(*http.Request) bool, debug bool) *WebSocketHandler {
	return &WebSocketHandler{
		server:   server,
		docs:     docs,
		registry: reg,
		renderer: renderer,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		debug:    debug,
	}
}

// Session is one editor connected to one document. Messages are handled one
// at a time under mu: every action is a single transform followed by a single
// re-render.
type Session struct {
	docID    string
	conn     *websocket.Conn
	engine   *transform.Engine
	ui       render.UIState
	renderer *render.Renderer
	docs     *lifecycle.Service
	dirty    bool
	debug    bool
	mu       sync.Mutex
}

// ServeHTTP handles GET /ws/documents/{id}.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	root := doc.DraftContent
	if root == nil {
		root = tree.NewDoc()
	}
	engine, err := transform.New(root, h.registry)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	s := &Session{
		docID:    doc.ID,
		conn:     conn,
		engine:   engine,
		renderer: h.renderer,
		docs:     h.docs,
		debug:    h.debug,
	}
	if h.server != nil {
		h.server.RegisterSession(s)
	}
	defer func() {
		if h.server != nil {
			h.server.UnregisterSession(s)
		}
		conn.Close()
	}()

	if h.debug {
		log.Printf("[WS] Client connected to %s: %s", doc.Slug, conn.RemoteAddr())
	}

	s.Refresh()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			break
		}

		if h.debug {
			log.Printf("[WS] Received: %s", message)
		}

		s.handleMessage(r.Context(), message)
	}

	s.mu.Lock()
	if s.dirty {
		log.Printf("[WS] Session on %s closed with unsaved changes", doc.Slug)
	}
	s.mu.Unlock()

	if h.debug {
		log.Printf("[WS] Client disconnected: %s", conn.RemoteAddr())
	}
}

// Refresh re-renders the tree without changing it. It is called when the
// session opens and when component definitions change.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendTree(treePayload{})
}

func (s *Session) handleMessage(ctx context.Context, message []byte) {
	var envelope MessageEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		s.mu.Lock()
		s.sendError(blockpress.Wrap(blockpress.CodeInvalidInput, "session.decode", err))
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.apply(ctx, envelope)
	if err != nil {
		if s.debug {
			log.Printf("[WS] %s failed: %v", envelope.Action, err)
		}
		s.sendError(err)
		return
	}
	s.sendTree(payload)
}

// apply runs one action. The caller holds s.mu.
func (s *Session) apply(ctx context.Context, env MessageEnvelope) (treePayload, error) {
	var (
		res transform.Result
		err error
	)
	switch env.Action {
	case ActionInsert:
		var d insertData
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		res, err = s.insert(d)

	case ActionMove:
		var d moveData
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		if d.NodeID == "" && d.Position != nil {
			res, err = s.engine.MoveSectionAt(*d.Position, d.Direction)
		} else {
			res, err = s.engine.MoveSection(d.NodeID, d.Direction)
		}

	case ActionDuplicate:
		var d target
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		if d.NodeID == "" && d.Position != nil {
			res, err = s.engine.DuplicateSectionAt(*d.Position)
		} else {
			res, err = s.engine.DuplicateSection(d.NodeID)
		}

	case ActionDelete:
		var d target
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		if d.NodeID == "" && d.Position != nil {
			res, err = s.engine.DeleteAt(*d.Position)
		} else {
			res, err = s.engine.Delete(d.NodeID)
		}
		if err == nil {
			s.dropStaleSelection()
		}

	case ActionUpdateProps:
		var d propsData
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		id, err := s.resolve(d.target)
		if err != nil {
			return treePayload{}, err
		}
		res, err = s.engine.UpdateProps(id, d.Props)
		if err != nil {
			return treePayload{}, err
		}

	case ActionSelect:
		var d selectData
		if err := decodeData(env, &d); err != nil {
			return treePayload{}, err
		}
		if d.NodeID != "" {
			if _, ok := s.engine.Index().Lookup(d.NodeID); !ok {
				return treePayload{}, blockpress.Wrap(blockpress.CodeNotFound, "session.select", transform.ErrNodeNotFound)
			}
		}
		s.ui.SelectedID = d.NodeID
		s.ui.OpenPanel = d.Panel
		return treePayload{NodeID: d.NodeID}, nil

	case ActionSave:
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		if _, err := s.docs.SaveDraft(saveCtx, s.docID, tree.Clone(s.engine.Root())); err != nil {
			return treePayload{}, err
		}
		s.dirty = false
		return treePayload{Saved: true}, nil

	default:
		return treePayload{}, blockpress.Errorf(blockpress.CodeInvalidInput, "session", "unknown action %q", env.Action)
	}

	if err != nil {
		return treePayload{}, err
	}
	if res.Changed {
		s.dirty = true
	}
	return treePayload{Changed: res.Changed, NodeID: res.NodeID}, nil
}

func (s *Session) insert(d insertData) (transform.Result, error) {
	parent := d.ParentID
	index := -1
	if d.Index != nil {
		index = *d.Index
	}

	switch {
	case d.AfterID != "":
		entry, ok := s.engine.Index().Lookup(d.AfterID)
		if !ok || entry.Parent == nil {
			return transform.Result{}, blockpress.Errorf(blockpress.CodeInvalidTarget, "session.insert", "cannot insert after %s", d.AfterID)
		}
		parent = entry.Parent.ID
		index = entry.Index + 1
	case parent == "" && d.ParentPosition != nil:
		entry, ok := s.engine.Index().At(*d.ParentPosition)
		if !ok {
			return transform.Result{}, blockpress.Wrap(blockpress.CodeNotFound, "session.insert", transform.ErrNodeNotFound)
		}
		parent = entry.Node.ID
	case parent == "":
		parent = s.engine.Root().ID
	}

	if index < 0 {
		index = 0
		if entry, ok := s.engine.Index().Lookup(parent); ok {
			index = len(entry.Node.Content)
		}
	}
	return s.engine.InsertSection(parent, index, d.ComponentKey, d.Props)
}

func (s *Session) resolve(t target) (tree.ID, error) {
	if t.NodeID != "" {
		return t.NodeID, nil
	}
	if t.Position != nil {
		if entry, ok := s.engine.Index().At(*t.Position); ok {
			return entry.Node.ID, nil
		}
		return "", blockpress.Wrap(blockpress.CodeNotFound, "session.target", transform.ErrNodeNotFound)
	}
	return "", blockpress.Errorf(blockpress.CodeInvalidInput, "session.target", "nodeId or position is required")
}

func (s *Session) dropStaleSelection() {
	if s.ui.SelectedID == "" {
		return
	}
	if _, ok := s.engine.Index().Lookup(s.ui.SelectedID); !ok {
		s.ui = render.UIState{}
	}
}

func decodeData(env MessageEnvelope, v any) error {
	if len(env.Data) == 0 {
		return blockpress.Errorf(blockpress.CodeInvalidInput, "session."+env.Action, "data is required")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return blockpress.Wrap(blockpress.CodeInvalidInput, "session."+env.Action, err)
	}
	return nil
}

// sendTree renders the current tree. The caller holds s.mu.
func (s *Session) sendTree(p treePayload) {
	el, resolutions := s.renderer.Render(s.engine.Root(), render.Context{Mode: render.ModeEditable, UIState: s.ui})
	html, err := render.HTML(el)
	if err != nil {
		s.sendError(blockpress.Wrap(blockpress.CodeInternal, "session.render", err))
		return
	}
	if resolutions == nil {
		resolutions = []render.Resolution{}
	}
	p.HTML = html
	p.Resolutions = resolutions
	p.SelectedID = s.ui.SelectedID
	p.Dirty = s.dirty
	s.send(ActionTree, p)
}

func (s *Session) sendError(err error) {
	var hint string
	var e *blockpress.Error
	if errors.As(err, &e) {
		hint = e.Hint
	}
	s.send(ActionError, errorBody{
		Error: blockpress.UserFriendlyMessage(err),
		Code:  blockpress.CodeOf(err),
		Hint:  hint,
	})
}

// send writes one envelope. gorilla/websocket allows a single concurrent
// writer, which s.mu provides.
func (s *Session) send(action string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s: %v", action, err)
		return
	}
	msg, err := json.Marshal(MessageEnvelope{Action: action, Data: raw})
	if err != nil {
		log.Printf("[WS] Failed to marshal envelope: %v", err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Printf("[WS] Failed to send message: %v", err)
		return
	}
	if s.debug {
		log.Printf("[WS] Sent %s (%d bytes)", action, len(msg))
	}
}
