package models

import "time"

// ========================================
// 메시지 타입 상수
// ========================================
const (
	// Server → Web
	MessageTypeMapState   = "map_state"   // 맵 뷰 상태 변경
	MessageTypeConnection = "connection"  // 버스 연결 상태 변경
	MessageTypeRaster     = "raster"      // 배경 래스터 로드 결과
	MessageTypeSystemInfo = "system_info" // 시스템 정보

	// Web → Server
	MessageTypeResize   = "resize"    // 컨테이너 크기 변경
	MessageTypeEditMode = "edit_mode" // 편집 모드 전환
	MessageTypePing     = "ping"
)

// ========================================
// 공통 WebSocket 메시지 형식
// ========================================
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"` // Unix timestamp (ms)
}

// ConnectionData - 버스 연결 상태
type ConnectionData struct {
	ViewID    string `json:"view_id"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// RasterData - 래스터 로드 결과
type RasterData struct {
	ViewID string `json:"view_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Error  string `json:"error,omitempty"`
}

// ResizeCommand - 컨테이너 크기 (show/resize)
type ResizeCommand struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EditModeCommand - 편집 모드 전환
type EditModeCommand struct {
	EditMode bool `json:"edit_mode"`
}

// ========================================
// 시스템 정보
// ========================================
type SystemInfo struct {
	ViewID           string    `json:"view_id"`
	ConnectedClients int       `json:"connected_clients"` // 연결된 클라이언트 수
	ActiveViews      int       `json:"active_views"`      // 활성 맵 뷰 수
	ServerTime       time.Time `json:"server_time"`       // 서버 시각
	Uptime           int64     `json:"uptime"`            // 가동 시간 (초)
}
