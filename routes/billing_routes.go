package routes

import (
	"github.com/cakedayhq/cakeday_backend/controllers"
	ws "github.com/cakedayhq/cakeday_backend/websocket"
	"github.com/labstack/echo/v4"
)

// RegisterBillingRoutes sets up the gateway-facing webhook endpoint. The
// webhook is public; its authenticity comes from the signature header, not
// from a session.
func RegisterBillingRoutes(e *echo.Echo, webhookController *controllers.WebhookController) {
	e.POST("/api/payments/webhook", webhookController.HandleGatewayWebhook)
}

// RegisterWebSocketRoutes sets up the dashboard event feed behind the admin
// JWT middleware
func RegisterWebSocketRoutes(g *echo.Group, hub *ws.Hub) {
	g.GET("/ws", func(c echo.Context) error {
		return ws.HandleWebSocket(c, hub)
	})
}
