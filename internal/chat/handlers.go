package chat

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		chats, err := svc.List(c.Context(), c.Locals("user_id").(string))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if chats == nil {
			chats = []Summary{}
		}
		return c.JSON(chats)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req OpenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		chat, err := svc.Open(c.Context(), c.Locals("user_id").(string), req)
		if err != nil {
			switch {
			case errors.Is(err, ErrPlateUnknown):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, ErrSelfChat):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(chat)
	})

	r.Get("/:id/messages", authMiddleware, func(c *fiber.Ctx) error {
		messages, err := svc.Messages(c.Context(), c.Params("id"), c.Locals("user_id").(string))
		if err != nil {
			return chatError(err)
		}
		if messages == nil {
			messages = []Message{}
		}
		return c.JSON(messages)
	})

	r.Post("/:id/messages", authMiddleware, func(c *fiber.Ctx) error {
		var req SendRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		msg, err := svc.Send(c.Context(), c.Params("id"), c.Locals("user_id").(string), req)
		if err != nil {
			if errors.Is(err, ErrEmptyMessage) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return chatError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	r.Put("/:id/read", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.MarkRead(c.Context(), c.Params("id"), c.Locals("user_id").(string)); err != nil {
			return chatError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func chatError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotMember):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
