package session

import (
	"net/http"

	"filmware-sync/internal/identity"
	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler upgrades HTTP requests to the sync websocket.
type Handler struct {
	upgrader websocket.Upgrader
	identity identity.Service
	records  record.Service
	feed     *stream.Feed
}

// NewHandler creates a websocket handler. Only the configured frontend
// origin may connect in production; an empty origin (native clients) is
// always allowed.
func NewHandler(identitySvc identity.Service, records record.Service, feed *stream.Feed, frontendAddress string) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == frontendAddress
			},
		},
		identity: identitySvc,
		records:  records,
		feed:     feed,
	}
}

// Serve handles GET /ws
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sess := New(conn, h.identity, h.records, h.feed)
	if err := sess.Run(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("session ended abnormally")
	}
}
