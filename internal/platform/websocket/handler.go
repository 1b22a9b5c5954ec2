package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// HospitalResolver finds the hospital of an authenticated user.
type HospitalResolver interface {
	HospitalIDForUser(ctx context.Context, userID int64) (int64, error)
}

// Handler upgrades authenticated requests to WebSocket connections.
type Handler struct {
	hub       *Hub
	hospitals HospitalResolver
	upgrader  gorillawebsocket.Upgrader
	logger    zerolog.Logger
}

// NewHandler builds a Handler. allowedOrigins of ["*"] or empty accepts any
// Origin header.
func NewHandler(hub *Hub, hospitals HospitalResolver, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		hospitals: hospitals,
		logger:    logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws", h.HandleConnect, auth.RequireRole(auth.RoleNurse, auth.RoleDoctor))
}

// HandleConnect upgrades the connection, registers the client on its default
// topics and starts the read and write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	hospitalID, err := h.hospitals.HospitalIDForUser(c.Request().Context(), id.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "User or hospital not found")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:         uuid.NewString(),
		UserID:     id.UserID,
		Role:       id.Role,
		HospitalID: hospitalID,
		Send:       make(chan []byte, sendBuffer),
		conn:       ws,
	}
	client.Topics = client.DefaultTopics()
	h.hub.Register(client)

	h.logger.Debug().
		Str("client_id", client.ID).
		Int64("user_id", client.UserID).
		Strs("topics", client.Topics).
		Msg("websocket: client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
