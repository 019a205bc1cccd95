package models

import (
	"time"
)

// 맵 이벤트 타입
const (
	EventBusConnected    = "bus_connected"
	EventBusError        = "bus_error"
	EventBusClosed       = "bus_closed"
	EventEntityExpired   = "entity_expired"
	EventMalformed       = "malformed_message"
	EventRasterLoaded    = "raster_loaded"
	EventRasterFailed    = "raster_failed"
	EventObstacleUpsert  = "obstacle_upsert"
	EventViewShown       = "view_shown"
	EventViewDestroyed   = "view_destroyed"
	EventEditModeChanged = "edit_mode_changed"
)

// MapEventLog - 맵 뷰 이벤트 로그
type MapEventLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	ViewID    string    `gorm:"index;size:64" json:"view_id"`
	EventType string    `gorm:"index;size:64" json:"event_type"`

	// 관련 엔티티
	Entity string `gorm:"size:32" json:"entity,omitempty"` // pose / planned_path / ...
	Topic  string `gorm:"size:128" json:"topic,omitempty"`

	// 위치 정보 (해당 시)
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`

	// 상세
	Message  string `json:"message"`
	DataJSON string `json:"data_json"` // 원본 데이터 JSON
}

// LogStats - 로그 통계
type LogStats struct {
	TotalLogs   int64            `json:"total_logs"`
	EventCounts map[string]int64 `json:"event_counts"`
	TimeRange   string           `json:"time_range"`
}
