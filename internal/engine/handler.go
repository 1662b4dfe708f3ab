package engine

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the engine over HTTP. The isAdmin hook decides whether a
// request sees hidden properties; it comes from the auth service so this
// package stays independent of token mechanics.
type Handler struct {
	engine  *Engine
	isAdmin func(*fiber.Ctx) bool
}

func NewHandler(e *Engine, isAdmin func(*fiber.Ctx) bool) *Handler {
	if isAdmin == nil {
		isAdmin = func(*fiber.Ctx) bool { return false }
	}
	return &Handler{engine: e, isAdmin: isAdmin}
}

func (h *Handler) fullVersion(c *fiber.Ctx) bool {
	return h.isAdmin(c)
}

func (h *Handler) paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, BadRequestError("Invalid id: " + c.Params("id"))
	}
	return id, nil
}

func (h *Handler) body(c *fiber.Ctx) (map[string]any, error) {
	dto := map[string]any{}
	if err := c.BodyParser(&dto); err != nil {
		return nil, BadRequestError("Invalid request body")
	}
	return dto, nil
}

func (h *Handler) List(c *fiber.Ctx) error {
	page, err := h.engine.FindAll(c.UserContext(), c.Params("entity"), c.Queries(), h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handler) SelectOptions(c *fiber.Ctx) error {
	options, err := h.engine.SelectOptions(c.UserContext(), c.Params("entity"), c.Queries())
	if err != nil {
		return err
	}
	return c.JSON(options)
}

func (h *Handler) GetOne(c *fiber.Ctx) error {
	id, err := h.paramID(c)
	if err != nil {
		return err
	}
	row, err := h.engine.FindOne(c.UserContext(), c.Params("entity"), id, c.Queries(), h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) Create(c *fiber.Ctx) error {
	dto, err := h.body(c)
	if err != nil {
		return err
	}
	row, err := h.engine.Create(c.UserContext(), c.Params("entity"), dto, h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := h.paramID(c)
	if err != nil {
		return err
	}
	dto, err := h.body(c)
	if err != nil {
		return err
	}
	row, err := h.engine.Update(c.UserContext(), c.Params("entity"), id, dto, false, h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := h.paramID(c)
	if err != nil {
		return err
	}
	row, err := h.engine.Delete(c.UserContext(), c.Params("entity"), id, h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) GetSingle(c *fiber.Ctx) error {
	row, err := h.engine.FindSingle(c.UserContext(), c.Params("entity"), h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) PutSingle(c *fiber.Ctx) error {
	dto, err := h.body(c)
	if err != nil {
		return err
	}
	row, err := h.engine.UpdateSingle(c.UserContext(), c.Params("entity"), dto, false, h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) PatchSingle(c *fiber.Ctx) error {
	dto, err := h.body(c)
	if err != nil {
		return err
	}
	row, err := h.engine.UpdateSingle(c.UserContext(), c.Params("entity"), dto, true, h.fullVersion(c))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ErrorHandler is the central fiber error handler. AppErrors translate to
// their status and envelope; anything unexpected logs and answers 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code:    "BAD_REQUEST",
			Status:  fiberErr.Code,
			Message: fiberErr.Message,
		}})
	}

	log.Printf("internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: &AppError{
		Code:    "INTERNAL_ERROR",
		Status:  fiber.StatusInternalServerError,
		Message: "Internal server error",
	}})
}
