package handlers

import (
	"errors"
	"strconv"
	"time"

	"costmap-backend/services"

	"github.com/gofiber/fiber/v2"
)

// logsError - 로그 조회 실패 응답 (DB 비활성이면 503)
func logsError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, services.ErrDatabaseDisabled) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiberError("Event log storage is disabled"))
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiberError(msg))
}

// queryLimit - limit 파라미터 (기본 100)
func queryLimit(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	return limit
}

// HandleGetRecentLogs - 최근 로그 조회
func HandleGetRecentLogs(c *fiber.Ctx) error {
	viewID := c.Query("view_id")
	if viewID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("view_id parameter is required"))
	}

	logs, err := services.GetRecentLogs(viewID, queryLimit(c))
	if err != nil {
		return logsError(c, err, "Failed to fetch logs")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(logs),
		"logs":    logs,
	})
}

// HandleGetLogsByTimeRange - 시간 범위로 로그 조회
func HandleGetLogsByTimeRange(c *fiber.Ctx) error {
	viewID := c.Query("view_id")
	if viewID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("view_id parameter is required"))
	}

	// 시작 시간 (기본: 24시간 전)
	start := time.Now().Add(-24 * time.Hour)
	if startStr := c.Query("start"); startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiberError("Invalid start time format (use RFC3339)"))
		}
		start = parsed
	}

	// 종료 시간 (기본: 현재)
	end := time.Now()
	if endStr := c.Query("end"); endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiberError("Invalid end time format (use RFC3339)"))
		}
		end = parsed
	}

	logs, err := services.GetLogsByTimeRange(viewID, start, end, queryLimit(c))
	if err != nil {
		return logsError(c, err, "Failed to fetch logs")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(logs),
		"time_range": fiber.Map{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"logs": logs,
	})
}

// HandleGetLogsByEventType - 이벤트 타입별 로그 조회
func HandleGetLogsByEventType(c *fiber.Ctx) error {
	viewID := c.Query("view_id")
	eventType := c.Query("event_type")
	if viewID == "" || eventType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("view_id and event_type parameters are required"))
	}

	logs, err := services.GetLogsByEventType(viewID, eventType, queryLimit(c))
	if err != nil {
		return logsError(c, err, "Failed to fetch logs")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"count":      len(logs),
		"event_type": eventType,
		"logs":       logs,
	})
}

// HandleGetLogStats - 로그 통계 조회
func HandleGetLogStats(c *fiber.Ctx) error {
	viewID := c.Query("view_id")
	if viewID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiberError("view_id parameter is required"))
	}

	hours, err := strconv.Atoi(c.Query("hours", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}

	stats, err := services.GetLogStats(viewID, hours)
	if err != nil {
		return logsError(c, err, "Failed to fetch stats")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}
