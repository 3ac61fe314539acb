// Package relay is the websocket command channel the editor talks to. Each
// text frame is one request; each request gets exactly one response frame.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/repo"
	"github.com/keshon/sbvc/internal/service"
)

// Request is one command frame.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response answers the request with the same id.
type Response struct {
	ID    string       `json:"id"`
	OK    bool         `json:"ok"`
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a stable kind code and a user-facing message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// params is the union of every command's payload.
type params struct {
	Project  string `json:"project"`
	Bundle   string `json:"bundle"`
	Message  string `json:"message"`
	Author   string `json:"author"`
	Revision string `json:"revision"`
	A        string `json:"a"`
	B        string `json:"b"`
	Remote   string `json:"remote"`
	// Token is used for one push or pull and is never logged or stored.
	Token string `json:"token"`
}

type handler func(ctx context.Context, p params) (any, error)

// Relay serves the command channel.
type Relay struct {
	svc      *service.Service
	upgrader websocket.Upgrader
	handlers map[string]handler
	logger   zerolog.Logger
	debug    bool
}

// New creates a relay over svc. With debug set, frames are logged, with
// the token field dropped.
func New(svc *service.Service, logger zerolog.Logger, debug bool) *Relay {
	r := &Relay{
		svc: svc,
		upgrader: websocket.Upgrader{
			// The editor page is served from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "relay").Logger(),
		debug:  debug,
	}
	r.handlers = map[string]handler{
		"exists":   r.exists,
		"ingest":   r.ingest,
		"export":   r.export,
		"commit":   r.commit,
		"log":      r.log,
		"read":     r.read,
		"diff":     r.diff,
		"status":   r.status,
		"targets":  r.targets,
		"checkout": r.checkout,
		"push":     r.push,
		"pull":     r.pull,
	}
	return r
}

// Handler returns the http.Handler serving /ws.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.ServeHTTP)
	return mux
}

// ListenAndServe serves the relay on addr until ctx is done.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: r.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	r.logger.Info().Str("addr", addr).Msg("relay starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP upgrades the connection and serves requests until the peer
// goes away.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{conn: conn}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		resp := r.Dispatch(req.Context(), data)
		if err := c.write(resp); err != nil {
			r.logger.Warn().Err(err).Msg("write response")
			return
		}
	}
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connection) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Dispatch decodes one frame and runs its command. A malformed frame yields
// an error response rather than an error.
func (r *Relay) Dispatch(ctx context.Context, frame []byte) Response {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Response{ID: uuid.NewString(), Error: &ErrorDetail{Kind: "bad_request", Message: "frame is not a JSON request: " + err.Error()}}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	h, ok := r.handlers[req.Command]
	if !ok {
		return Response{ID: req.ID, Error: &ErrorDetail{Kind: "bad_request", Message: fmt.Sprintf("unknown command %q", req.Command)}}
	}
	var p params
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return Response{ID: req.ID, Error: &ErrorDetail{Kind: "bad_request", Message: "bad data: " + err.Error()}}
		}
	}
	if r.debug {
		r.logger.Debug().Str("id", req.ID).Str("command", req.Command).Str("project", p.Project).
			Int("bundle_bytes", len(p.Bundle)).Bool("token", p.Token != "").Msg("<- request")
	}

	data, err := h(ctx, p)
	if err != nil {
		r.logger.Info().Str("id", req.ID).Str("command", req.Command).Str("project", p.Project).
			Str("kind", errs.Kind(err)).Msg("command failed")
		return Response{ID: req.ID, Error: &ErrorDetail{Kind: errs.Kind(err), Message: errs.Message(err)}}
	}
	return Response{ID: req.ID, OK: true, Data: data}
}

func (r *Relay) exists(_ context.Context, p params) (any, error) {
	return map[string]bool{"exists": r.svc.Exists(p.Project)}, nil
}

func (r *Relay) ingest(_ context.Context, p params) (any, error) {
	bundle, err := base64.StdEncoding.DecodeString(p.Bundle)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrMalformedArchive, "ingest", "bundle is not base64: %v", err)
	}
	t, err := r.svc.Ingest(p.Project, bundle)
	if err != nil {
		return nil, err
	}
	ix, err := t.Index()
	if err != nil {
		return nil, err
	}
	return map[string]int{"assets": len(ix.Assets)}, nil
}

func (r *Relay) export(_ context.Context, p params) (any, error) {
	data, err := r.svc.ExportProject(p.Project)
	if err != nil {
		return nil, err
	}
	return map[string]string{"bundle": base64.StdEncoding.EncodeToString(data)}, nil
}

func (r *Relay) commit(_ context.Context, p params) (any, error) {
	rev, err := r.svc.CommitWorking(p.Project, p.Message, p.Author)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revision": rev}, nil
}

func (r *Relay) log(_ context.Context, p params) (any, error) {
	revs, err := r.svc.Log(p.Project)
	if err != nil {
		return nil, err
	}
	if revs == nil {
		revs = []repo.Revision{}
	}
	return map[string]any{"revisions": revs}, nil
}

func (r *Relay) read(_ context.Context, p params) (any, error) {
	t, err := r.svc.Read(p.Project, p.Revision)
	if err != nil {
		return nil, err
	}
	proj, err := t.Project()
	if err != nil {
		return nil, err
	}
	return map[string]any{"targets": proj.TargetNames()}, nil
}

func (r *Relay) diff(_ context.Context, p params) (any, error) {
	return r.svc.Diff(p.Project, p.A, p.B)
}

func (r *Relay) status(_ context.Context, p params) (any, error) {
	return r.svc.Status(p.Project)
}

func (r *Relay) targets(_ context.Context, p params) (any, error) {
	names, err := r.svc.Targets(p.Project)
	if err != nil {
		return nil, err
	}
	return map[string]any{"targets": names}, nil
}

func (r *Relay) checkout(_ context.Context, p params) (any, error) {
	if _, err := r.svc.Checkout(p.Project, p.Revision); err != nil {
		return nil, err
	}
	head, err := r.svc.Head(p.Project)
	if err != nil {
		return nil, err
	}
	return map[string]string{"revision": p.Revision, "head": head}, nil
}

func (r *Relay) push(ctx context.Context, p params) (any, error) {
	if err := r.svc.Push(ctx, p.Project, p.Remote, p.Token); err != nil {
		return nil, err
	}
	return map[string]bool{"pushed": true}, nil
}

func (r *Relay) pull(ctx context.Context, p params) (any, error) {
	return r.svc.Pull(ctx, p.Project, p.Remote, p.Token)
}
