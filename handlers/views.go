package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"image/png"
	"log"
	"strings"
	"time"

	"costmap-backend/models"
	"costmap-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/zeebo/blake3"
)

// 요청 처리 대기 한도 (컴포넌트 이벤트 루프 응답)
const requestTimeout = 5 * time.Second

var (
	// Views - 전역 뷰 관리자
	Views *ViewManager

	startedAt = time.Now()

	pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}
)

// InitViews - 뷰 관리자 초기화 (push 는 전역 클라이언트 관리자로)
func InitViews(cfg services.MapConfig, newBus BusFactory) {
	Views = NewViewManager(ViewManagerOptions{
		Config:   cfg,
		NewBus:   newBus,
		Notify:   Manager.BroadcastToView,
		EventLog: services.LogMapEvent,
	})
	log.Println("✅ 뷰 관리자 초기화 완료")
}

func requestContextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func fiberError(msg string) fiber.Map {
	return fiber.Map{"error": msg}
}

// viewError - 뷰 관련 에러 → HTTP 응답
func viewError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrViewNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiberError("View not found"))
	case errors.Is(err, services.ErrViewDestroyed):
		return c.Status(fiber.StatusGone).JSON(fiberError("View destroyed"))
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiberError("View busy"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiberError(err.Error()))
	}
}

// HandleCreateView - 뷰 생성 및 표시
func HandleCreateView(c *fiber.Ctx) error {
	var req models.ResizeCommand
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("Invalid request body"))
	}
	if req.Width <= 0 || req.Height <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("width and height must be positive"))
	}

	ctx, cancel := requestContextWithCancel()
	defer cancel()

	info, err := Views.CreateView(ctx, req.Width, req.Height)
	if err != nil {
		return viewError(c, err)
	}
	state, err := info.Component.State(ctx)
	if err != nil {
		return viewError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"view_id": info.ID,
		"state":   state,
	})
}

// HandleListViews - 뷰 목록
func HandleListViews(c *fiber.Ctx) error {
	views := Views.GetAllViews()
	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(views),
		"views":   views,
	})
}

// HandleDeleteView - 뷰 종료
func HandleDeleteView(c *fiber.Ctx) error {
	if err := Views.RemoveView(c.Params("id")); err != nil {
		return viewError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleResizeView - 컨테이너 크기 변경
func HandleResizeView(c *fiber.Ctx) error {
	var req models.ResizeCommand
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("Invalid request body"))
	}
	if req.Width <= 0 || req.Height <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("width and height must be positive"))
	}

	ctx, cancel := requestContextWithCancel()
	defer cancel()

	id := c.Params("id")
	if err := Views.ResizeView(ctx, id, req.Width, req.Height); err != nil {
		return viewError(c, err)
	}
	return handleStateResponse(ctx, c, id)
}

// HandleSetEditMode - 편집 모드 전환
func HandleSetEditMode(c *fiber.Ctx) error {
	var req models.EditModeCommand
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("Invalid request body"))
	}

	ctx, cancel := requestContextWithCancel()
	defer cancel()

	id := c.Params("id")
	info, err := Views.GetView(id)
	if err != nil {
		return viewError(c, err)
	}
	if err := info.Component.SetEditMode(ctx, req.EditMode); err != nil {
		return viewError(c, err)
	}
	return handleStateResponse(ctx, c, id)
}

// HandleGetViewState - 엔티티 상태 조회
func HandleGetViewState(c *fiber.Ctx) error {
	ctx, cancel := requestContextWithCancel()
	defer cancel()
	return handleStateResponse(ctx, c, c.Params("id"))
}

func handleStateResponse(ctx context.Context, c *fiber.Ctx, id string) error {
	info, err := Views.GetView(id)
	if err != nil {
		return viewError(c, err)
	}
	state, err := info.Component.State(ctx)
	if err != nil {
		return viewError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"state":   state,
	})
}

// HandleGetFrame - 현재 프레임 PNG
//
// ETag 는 PNG 바이트의 BLAKE3 해시. If-None-Match 가 같으면 304.
func HandleGetFrame(c *fiber.Ctx) error {
	info, err := Views.GetView(c.Params("id"))
	if err != nil {
		return viewError(c, err)
	}

	ctx, cancel := requestContextWithCancel()
	defer cancel()

	img, _, err := info.Component.Snapshot(ctx)
	if err != nil {
		return viewError(c, err)
	}
	if img.Bounds().Empty() {
		return c.Status(fiber.StatusNoContent).Send(nil)
	}

	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiberError("Failed to encode frame"))
	}

	sum := blake3.Sum256(buf.Bytes())
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if matchETag(c.Get(fiber.HeaderIfNoneMatch), etag) {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// matchETag - If-None-Match 목록에 etag 가 있는지 (약한 비교)
func matchETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
