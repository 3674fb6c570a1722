package controller

import (
	"errors"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/pkg/serverutils"
	"tracking-support-be/internal/service"
	"tracking-support-be/pkg/support/dialogue"

	"github.com/gofiber/fiber/v2"
)

type ISupportController interface {
	RegisterRoutes(r fiber.Router)
	SendMessage(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	ListCarriers(ctx *fiber.Ctx) error
}

type supportController struct {
	supportService service.ISupportService
}

func NewSupportController(supportService service.ISupportService) ISupportController {
	return &supportController{supportService: supportService}
}

func (c *supportController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/support/v1")
	h.Post("/chat", c.SendMessage)
	h.Get("/sessions/:id", c.GetSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Get("/carriers", c.ListCarriers)
}

func (c *supportController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.supportService.SendMessage(ctx.UserContext(), &req)
	if err != nil {
		// The turn is already committed; hand back the outcome with the error
		if errors.Is(err, service.ErrRenderFailed) && res != nil {
			return &serverutils.HTTPError{Code: fiber.StatusBadGateway, Message: err.Error(), Data: res, Err: err}
		}
		return supportError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *supportController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.supportService.GetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return supportError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *supportController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.supportService.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return supportError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *supportController) ListCarriers(ctx *fiber.Ctx) error {
	res := c.supportService.ListCarriers(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success list carriers", res))
}

func supportError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return serverutils.NewHTTPError(fiber.StatusNotFound, err)
	case errors.Is(err, dialogue.ErrTurnAbandoned):
		return serverutils.NewHTTPError(fiber.StatusRequestTimeout, err)
	default:
		return err
	}
}
