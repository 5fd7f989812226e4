// Package ws streams event bus traffic to websocket clients.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Handler serves GET /ws/events.
type Handler struct {
	hub         *Hub
	origins     []string
	unsubscribe func()
	logger      *zap.Logger
}

var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler subscribes to every topic on bus and relays events to clients.
// origins lists extra host patterns allowed to connect cross-origin.
func NewHandler(bus plugin.EventBus, origins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:     NewHub(logger),
		origins: origins,
		logger:  logger,
	}
	if bus != nil {
		h.unsubscribe = bus.SubscribeAll(h.relay)
	}
	return h
}

// RegisterRoutes registers the websocket route on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.handleEvents)
}

// Close stops relaying bus events.
func (h *Handler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *Handler) relay(_ context.Context, e plugin.Event) {
	h.hub.Broadcast(Message{
		Type:      e.Topic,
		Source:    e.Source,
		Timestamp: e.Timestamp,
		Data:      e.Payload,
	})
}

// handleEvents upgrades the connection and streams events until the client
// disconnects. ?topics=discovery.sweep,snapshot limits the stream to those
// topic prefixes.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		filter: parseFilter(r.URL.Query().Get("topics")),
		send:   make(chan Message, 256),
		logger: h.logger,
	}
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
