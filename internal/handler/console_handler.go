package handler

import (
	"errors"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/pkg/serverutils"
	"tracking-support-be/internal/service"
	internalWS "tracking-support-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ConsoleHandler serves the agent console: the live feed over websocket and
// the persisted turn history of a session.
type ConsoleHandler struct {
	history service.ITurnHistoryService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewConsoleHandler(history service.ITurnHistoryService, hub *internalWS.Hub, log logger.ILogger) *ConsoleHandler {
	return &ConsoleHandler{
		history: history,
		hub:     hub,
		logger:  log,
	}
}

func (h *ConsoleHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/support/v1/console")
	g.Get("/ws", h.ServeWs)
	g.Get("/sessions/:id/turns", h.GetTurns)
}

// ServeWs upgrades the request and attaches the console to the hub. The agent
// is identified by the agent_id query parameter; a random id is assigned
// otherwise.
func (h *ConsoleHandler) ServeWs(c *fiber.Ctx) error {
	agentID := c.Query("agent_id")
	if agentID == "" {
		agentID = uuid.NewString()
	}
	if len(agentID) > 64 {
		return fiber.NewError(fiber.StatusBadRequest, "agent_id is too long")
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ConsoleHandler", "Starting console session", map[string]interface{}{"agent_id": agentID})
			internalWS.ServeWs(h.hub, conn, agentID)
			h.logger.Info("ConsoleHandler", "Console session ended", map[string]interface{}{"agent_id": agentID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// GetTurns returns the audit log of a session, oldest first.
func (h *ConsoleHandler) GetTurns(c *fiber.Ctx) error {
	req := dto.TurnHistoryRequest{
		SessionId:     c.Params("id"),
		EscalatedOnly: c.QueryBool("escalated", false),
		Limit:         c.QueryInt("limit", 50),
		Offset:        c.QueryInt("offset", 0),
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := h.history.List(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrAuditDisabled) {
			return serverutils.NewHTTPError(fiber.StatusNotImplemented, err)
		}
		return err
	}

	return c.JSON(serverutils.SuccessResponse("Success list turns", res))
}
