package controller

import (
	"ai-lecture-be/internal/dto"
	"ai-lecture-be/internal/pkg/serverutils"
	"ai-lecture-be/internal/service"
	"ai-lecture-be/pkg/cache"

	"github.com/gofiber/fiber/v2"
)

type ILectureController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	CacheStats(ctx *fiber.Ctx) error
	ClearCache(ctx *fiber.Ctx) error
}

type lectureController struct {
	lectureService service.ILectureService
	contentCache   *cache.ContentCache
}

func NewLectureController(lectureService service.ILectureService, contentCache *cache.ContentCache) ILectureController {
	return &lectureController{
		lectureService: lectureService,
		contentCache:   contentCache,
	}
}

func (c *lectureController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/lecture/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Start)
	h.Get("cache/stats", c.CacheStats)
	h.Delete("cache", c.ClearCache)
	h.Get(":id", c.Status)
}

func (c *lectureController) Start(ctx *fiber.Ctx) error {
	var req dto.StartLectureRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.lectureService.Start(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Lecture session started", res))
}

func (c *lectureController) Status(ctx *fiber.Ctx) error {
	sessionID := ctx.Params("id")

	res, err := c.lectureService.Status(ctx.Context(), sessionID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	return ctx.JSON(serverutils.SuccessResponse("Session status", res))
}

func (c *lectureController) CacheStats(ctx *fiber.Ctx) error {
	stats, err := c.contentCache.Stats(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Cache stats", stats))
}

func (c *lectureController) ClearCache(ctx *fiber.Ctx) error {
	deleted, err := c.contentCache.ClearAll(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Cache cleared", fiber.Map{"deleted": deleted}))
}
