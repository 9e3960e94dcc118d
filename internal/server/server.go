// Package server exposes documents, components and editing sessions over
// HTTP and WebSocket, and serves published pages.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/cache"
	"github.com/livetemplate/blockpress/internal/compiler"
	"github.com/livetemplate/blockpress/internal/config"
	"github.com/livetemplate/blockpress/internal/lifecycle"
	"github.com/livetemplate/blockpress/internal/notify"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/render"
	"github.com/livetemplate/blockpress/internal/store"
	"github.com/livetemplate/blockpress/internal/watch"
)

// Server wires the registry, compiler, renderer and lifecycle to HTTP.
type Server struct {
	config   *config.Config
	store    store.Store
	registry *registry.Registry
	compiler *compiler.Compiler
	renderer *render.Renderer
	docs     *lifecycle.Service
	pages    *cache.Memory[string] // published HTML keyed by document, version and registry generation
	notifier *notify.Notifier
	handler  http.Handler

	sessions map[*Session]bool
	sessMu   sync.RWMutex

	watcher *watch.Watcher
	events  <-chan registry.Event
	cancel  context.CancelFunc
	done    []<-chan struct{}
}

// New builds a server over st. Custom components persisted in st are
// restored and the configured seed file is applied. The caller owns st.
func New(ctx context.Context, cfg *config.Config, st store.Store) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	debug := cfg.Server.Debug

	comp := compiler.New(compiler.Options{
		Limits: compiler.Limits{
			MaxSteps:    cfg.Compiler.GetMaxSteps(),
			MaxElements: cfg.Compiler.GetMaxElements(),
			MaxDepth:    cfg.Compiler.GetMaxDepth(),
			MaxBytes:    cfg.Compiler.GetMaxBytes(),
		},
		MaxSourceBytes: cfg.Compiler.GetMaxSourceBytes(),
		CacheTTL:       cfg.Compiler.GetCacheTTL(),
		Debug:          debug,
	})
	reg := registry.New(registry.WithValidator(comp.Check))

	if cfg.Components.SeedFile != "" {
		if err := reg.LoadSeedFile(cfg.Components.SeedFile); err != nil {
			return nil, fmt.Errorf("failed to load component seed: %w", err)
		}
	}
	if err := restoreComponents(ctx, reg, st); err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	renderer := render.New(render.NewResolver(reg, comp, render.WithDebug(debug)))
	docs := lifecycle.New(st,
		lifecycle.WithBaseURL(cfg.Server.GetPublicBaseURL()),
		lifecycle.WithDebug(debug),
		lifecycle.WithOnPublish(func(doc *store.Document, res lifecycle.PublishResult) {
			notifier.Notify(notify.Event{
				DocumentID: doc.ID,
				Slug:       doc.Slug,
				Title:      doc.Title,
				Version:    res.Version,
				URL:        res.URL,
				At:         time.Now().UTC(),
			})
		}),
	)

	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		config:   cfg,
		store:    st,
		registry: reg,
		compiler: comp,
		renderer: renderer,
		docs:     docs,
		notifier: notifier,
		pages:    cache.New[string](time.Minute),
		sessions: make(map[*Session]bool),
		cancel:   cancel,
	}

	rateLimit, rlDone := RateLimitMiddleware(ctx,
		cfg.API.GetRateLimitRPS(), cfg.API.GetRateLimitBurst(), cfg.API.GetMaxTrackedIPs())
	s.done = append(s.done, rlDone)

	api := http.NewServeMux()
	NewAPIHandler(docs, reg, comp, renderer, debug).Register(api)

	mux := http.NewServeMux()
	mux.Handle("/api/", CORSMiddleware(cfg.API.GetCORSOrigins())(rateLimit(CompressionMiddleware(api))))
	mux.Handle("GET /ws/documents/{id}", NewWebSocketHandler(s, docs, reg, renderer, s.checkOrigin, debug))
	mux.Handle("GET /p/{slug}", CompressionMiddleware(http.HandlerFunc(s.servePublished)))
	mux.HandleFunc("GET /healthz", s.serveHealth)
	s.handler = SecurityHeadersMiddleware()(mux)

	s.events = reg.Watch()
	watchDone := make(chan struct{})
	s.done = append(s.done, watchDone)
	go s.followRegistry(ctx, watchDone)

	return s, nil
}

// restoreComponents registers the custom components saved in st.
func restoreComponents(ctx context.Context, reg *registry.Registry, st store.Store) error {
	srcs, err := st.ListComponents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored components: %w", err)
	}
	for _, src := range srcs {
		if _, err := reg.PutCustom(src); err != nil {
			log.Printf("[Server] Skipping stored component %s: %v", src.Key, err)
		}
	}
	if len(srcs) > 0 {
		log.Printf("[Server] Restored %d custom component(s)", len(srcs))
	}
	return nil
}

// newNotifier builds the configured publish notification outputs.
func newNotifier(cfgs []notify.Config) (*notify.Notifier, error) {
	outputs := make([]notify.Output, 0, len(cfgs))
	for i, c := range cfgs {
		out, err := notify.NewFromConfig(c)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}
		outputs = append(outputs, out)
	}
	if len(outputs) > 0 {
		log.Printf("[Server] %d publish notification output(s) configured", len(outputs))
	}
	return notify.New(10*time.Second, outputs...), nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Registry returns the component registry.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Documents returns the lifecycle service.
func (s *Server) Documents() *lifecycle.Service { return s.docs }

// Renderer returns the document renderer.
func (s *Server) Renderer() *render.Renderer { return s.renderer }

// Compiler returns the component compiler.
func (s *Server) Compiler() *compiler.Compiler { return s.compiler }

// followRegistry drops cached compiled components and pages when definitions
// change and re-renders open sessions.
func (s *Server) followRegistry(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			if ev.Type != registry.EventAdded {
				s.compiler.Invalidate(ev.Key)
			}
			s.pages.InvalidateAll()
			if s.config.Server.Debug {
				log.Printf("[Server] Component %s %s (generation %d)", ev.Key, ev.Type, ev.Generation)
			}
			s.BroadcastRefresh()
		case <-ctx.Done():
			return
		}
	}
}

// EnableWatch loads the component files in the configured watch directory
// and reloads them on change.
func (s *Server) EnableWatch(ctx context.Context) error {
	dir := s.config.Components.WatchDir
	if dir == "" {
		return nil
	}
	w, err := watch.New(dir, s.registry, s.store, s.config.Server.Debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	n := w.LoadAll(ctx)
	w.Start(ctx)
	s.watcher = w
	log.Printf("[Watch] Watching %s (%d component(s) loaded)", dir, n)
	return nil
}

// Close stops background work. Open sessions end when their connections
// close.
func (s *Server) Close() error {
	s.cancel()
	for _, d := range s.done {
		<-d
	}
	s.registry.Unwatch(s.events)
	s.pages.Stop()
	err := s.notifier.Close()
	if s.watcher != nil {
		err = errors.Join(err, s.watcher.Stop())
	}
	return err
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[Server] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// RegisterSession tracks an open editing session.
func (s *Server) RegisterSession(sess *Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[sess] = true
	log.Printf("[Server] Session opened on %s: %d active sessions", sess.docID, len(s.sessions))
}

// UnregisterSession stops tracking a session.
func (s *Server) UnregisterSession(sess *Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, sess)
	log.Printf("[Server] Session closed on %s: %d active sessions", sess.docID, len(s.sessions))
}

// BroadcastRefresh re-renders every open session.
func (s *Server) BroadcastRefresh() {
	s.sessMu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessMu.RUnlock()

	for _, sess := range sessions {
		sess.Refresh()
	}
}

// checkOrigin accepts same-host WebSocket upgrades and configured CORS
// origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range s.config.API.GetCORSOrigins() {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.sessMu.RLock()
	sessions := len(s.sessions)
	s.sessMu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    blockpress.Version,
		"components": s.registry.Count(),
		"generation": s.registry.Generation(),
		"sessions":   sessions,
		"compiled":   s.compiler.Stats(),
		"pages":      s.pages.Stats(),
	})
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="generator" content="blockpress {{.Generator}}">
<title>{{.Title}}</title>
<link rel="canonical" href="{{.Canonical}}">
</head>
<body>
<main data-document="{{.Slug}}" data-version="{{.Version}}">
{{.Body}}
</main>
</body>
</html>
`))

type pageData struct {
	Title     string
	Slug      string
	Version   int
	Canonical string
	Generator string
	Body      template.HTML
}

// servePublished serves GET /p/{slug}, the latest version or ?v=n.
func (s *Server) servePublished(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	version := 0
	if raw := r.URL.Query().Get("v"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid version", http.StatusBadRequest)
			return
		}
		version = n
	}

	doc, v, err := s.docs.Published(r.Context(), slug, version)
	if err != nil {
		status := statusFor(blockpress.CodeOf(err))
		if status == http.StatusInternalServerError {
			log.Printf("[Server] Failed to load %s: %v", slug, err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	key := fmt.Sprintf("%s/%d/%d", doc.ID, v.Version, s.registry.Generation())
	etag := strconv.Quote(key)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	page, err := s.pages.GetOrCreate(key, 0, func() (string, error) {
		return s.renderPage(doc, v)
	})
	if err != nil {
		log.Printf("[Server] Failed to render %s v%d: %v", slug, v.Version, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	if version == 0 {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=300")
	}
	_, _ = w.Write([]byte(page))
}

// renderPage renders one published version as a standalone HTML page.
func (s *Server) renderPage(doc *store.Document, v *store.Version) (string, error) {
	el, resolutions := s.renderer.Render(v.Content, render.Context{Mode: render.ModePublic})
	body, err := s.renderer.PublicHTML(el)
	if err != nil {
		return "", err
	}
	for _, res := range resolutions {
		if res.Status != render.StatusOK {
			log.Printf("[Server] %s v%d: section %s (%s) rendered as %s", doc.Slug, v.Version, res.NodeID, res.ComponentKey, res.Status)
		}
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, pageData{
		Title:     doc.Title,
		Slug:      doc.Slug,
		Version:   v.Version,
		Canonical: s.docs.PublicURL(doc.Slug, v.Version),
		Generator: blockpress.Version,
		Body:      template.HTML(body),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
