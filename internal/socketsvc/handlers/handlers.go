package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/socketsvc/chat"
	"github.com/avvvet/electionday-services/internal/socketsvc/ws"
)

// ChatCreator opens new chats.
type ChatCreator interface {
	Create(ctx context.Context, c *chat.Chat) error
}

type Handler struct {
	upgrader  websocket.Upgrader
	ws        *ws.Ws
	chats     ChatCreator
	tokenAuth *jwtauth.JWTAuth
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(s *ws.Ws, chats ChatCreator, tokenAuth *jwtauth.JWTAuth) *Handler {
	h := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ws:        s,
		chats:     chats,
		tokenAuth: tokenAuth,
	}
	return h
}

// HandleWebSocket serves listening and managing clients.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.upgrade(w, r, ws.Identity{})
}

// HandleChat serves customer and staff chat clients, identified by their
// token.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		log.Errorf("Rejecting chat connection: %v", err)
		h.CreateResponse(w, Response{Code: http.StatusUnauthorized, Error: err.Error()})
		return
	}
	h.upgrade(w, r, identity)
}

func (h *Handler) upgrade(w http.ResponseWriter, r *http.Request, identity ws.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	log.Infof("New WebSocket connection established from %s", r.RemoteAddr)
	go h.ws.Attach(conn, identity)
}

// CreateChat opens a chat for the customer and returns a token carrying
// its id.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusUnauthorized, Error: err.Error()})
		return
	}

	var body struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Topic == "" {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "missing topic"})
		return
	}

	c := &chat.Chat{
		ID:     uuid.NewString(),
		Schema: chi.URLParam(r, "schema"),
		Topic:  body.Topic,
		Active: true,
	}
	if err := h.chats.Create(r.Context(), c); err != nil {
		log.Errorf("Error [CreateChat] %v", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "unable to open chat"})
		return
	}

	next := make(map[string]interface{}, len(claims)+2)
	for k, v := range claims {
		next[k] = v
	}
	next["active_chat_id"] = c.ID
	next["schema"] = c.Schema
	next["exp"] = time.Now().Add(24 * time.Hour).Unix()
	_, token, err := h.tokenAuth.Encode(next)
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: err.Error()})
		return
	}

	h.CreateResponse(w, Response{
		Message: "chat opened",
		Code:    http.StatusCreated,
		Data:    map[string]string{"id": c.ID, "token": token},
	})
}

func identityFromRequest(r *http.Request) (ws.Identity, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ws.Identity{}, err
	}
	identity := ws.Identity{
		Schema:       chi.URLParam(r, "schema"),
		UserID:       claimString(claims, "userid"),
		Role:         claimString(claims, "role"),
		ActiveChatID: claimString(claims, "active_chat_id"),
	}
	if identity.Schema == "" {
		return identity, fmt.Errorf("missing schema")
	}
	if schema := claimString(claims, "schema"); schema != "" && schema != identity.Schema {
		return identity, fmt.Errorf("token is not valid for %s", identity.Schema)
	}
	if groups, ok := claims["groupids"].([]interface{}); ok {
		for _, g := range groups {
			identity.GroupIDs = append(identity.GroupIDs, fmt.Sprint(g))
		}
	}
	return identity, nil
}

func claimString(claims map[string]interface{}, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// tokenFromQuery reads the token of browsers, which can't set headers on
// websocket requests.
func tokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("jwt")
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "socket service is running at port " + os.Getenv("SOCKET_SERVICE_PORT"),
		Code:    http.StatusOK,
		Data:    h.ws.Status(),
	})
}

// Verifier looks for the token in the header, the cookie and the query.
func (h *Handler) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verify(h.tokenAuth, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie, tokenFromQuery)
}
