package controller

import (
	"rag-agent-be/internal/dto"
	"rag-agent-be/internal/pkg/serverutils"
	"rag-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatbotController interface {
	RegisterRoutes(r fiber.Router)
	SendChat(ctx *fiber.Ctx) error
	SubmitSelection(ctx *fiber.Ctx) error
	GetChatHistory(ctx *fiber.Ctx) error
}

type chatbotController struct {
	chatbotService service.IChatbotService
}

func NewChatbotController(chatbotService service.IChatbotService) IChatbotController {
	return &chatbotController{
		chatbotService: chatbotService,
	}
}

func (c *chatbotController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("", c.SendChat)
	h.Post("selection", c.SubmitSelection)
	h.Get(":session_id/history", c.GetChatHistory)
}

func (c *chatbotController) SendChat(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	// A client retrying a turn may send its key as a header instead
	if req.RequestId == "" {
		req.RequestId = ctx.Get(fiber.HeaderXRequestID)
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// fiber does not cancel UserContext on client disconnect, so over HTTP the
	// turn runs until CHAT_TURN_TIMEOUT
	res, err := c.chatbotService.SendChat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	// the chat endpoints answer with the bare payload the widget expects
	return ctx.JSON(res)
}

func (c *chatbotController) SubmitSelection(ctx *fiber.Ctx) error {
	var req dto.SubmitSelectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatbotService.SubmitSelection(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (c *chatbotController) GetChatHistory(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.GetChatHistory(ctx.UserContext(), ctx.Params("session_id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}
