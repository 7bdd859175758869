package rescue

import (
	"errors"

	"backend-platego/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/create", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		rescue, err := svc.Create(c.Context(), c.Locals("user_id").(string), req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(rescue)
	})

	r.Put("/accept/:id", authMiddleware, func(c *fiber.Ctx) error {
		if c.Locals("role") != auth.RoleVolunteer {
			return fiber.NewError(fiber.StatusForbidden, "only volunteers can accept rescues")
		}
		volunteerID := c.Locals("user_id").(string)
		rescue, err := svc.Accept(c.Context(), c.Params("id"), volunteerID, volunteerID)
		if err != nil {
			if errors.Is(err, ErrAlreadyTaken) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(rescue)
	})

	r.Put("/complete/:id", authMiddleware, func(c *fiber.Ctx) error {
		err := svc.Complete(c.Context(), c.Params("id"), c.Locals("user_id").(string))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": StatusCompleted})
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		err := svc.Cancel(c.Context(), c.Params("id"), c.Locals("user_id").(string))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"status": StatusCancelled})
	})

	r.Get("/:id/positions", authMiddleware, func(c *fiber.Ctx) error {
		positions, err := svc.Positions(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(positions)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		rescue, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(rescue)
	})
}
