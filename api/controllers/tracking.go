package controllers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parcelhive/parcelhive-backend/api/responses"
	orderssvc "github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/internal/tracking"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

var trackingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TrackingViewer upgrades the connection to a websocket and streams the
// shipper's position for one order until the client disconnects.
func TrackingViewer(hub *tracking.Hub, svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking hub unavailable"))
			return
		}

		detail, err := loadAuthorizedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conn, err := trackingUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake error.
			logg.Warn(r.Context(), "websocket upgrade failed")
			return
		}

		hub.RegisterViewer(detail.ID, conn)
		defer func() {
			hub.Unregister(conn)
			_ = conn.Close()
		}()

		// The viewer never sends application data; the read loop only spots
		// the disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
