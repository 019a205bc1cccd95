package models

import (
	"time"

	"costmap-backend/algorithms"
)

// Point - 월드 좌표 (미터)
type Point = algorithms.Point

// RobotPose - 로봇 위치 + 방향
type RobotPose struct {
	X       float64 `json:"x"`       // X 좌표 (미터)
	Y       float64 `json:"y"`       // Y 좌표 (미터)
	Heading float64 `json:"heading"` // 요 (라디안)
}

// Obstacle - 장애물 (ID 기준 upsert)
type Obstacle struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"` // 반경 (미터)
}

// Waypoints - 설정에서 한 번 읽어오는 정적 마커
type Waypoints struct {
	StartPoint  *Point  `json:"start_point,omitempty"`
	Checkpoints []Point `json:"checkpoints"`
	FinalGoal   *Point  `json:"final_goal,omitempty"`
	Landmarks   []Point `json:"landmarks"`
}

// EntityKind - 동적 엔티티 종류
type EntityKind string

const (
	EntityPose          EntityKind = "pose"
	EntityPlannedPath   EntityKind = "planned_path"
	EntityTraversedPath EntityKind = "traversed_path"
	EntityObstacles     EntityKind = "obstacles"
)

// AllEntityKinds - 구독 순서
var AllEntityKinds = []EntityKind{
	EntityPose,
	EntityPlannedPath,
	EntityTraversedPath,
	EntityObstacles,
}

// MapState - 맵 뷰의 현재 상태 스냅샷 (웹 클라이언트 전송용)
type MapState struct {
	ViewID        string     `json:"view_id"`
	Version       uint64     `json:"version"`
	Connected     bool       `json:"connected"`
	EditMode      bool       `json:"edit_mode"`
	CanvasWidth   int        `json:"canvas_width"`
	CanvasHeight  int        `json:"canvas_height"`
	RasterWidth   int        `json:"raster_width"`
	RasterHeight  int        `json:"raster_height"`
	RasterError   string     `json:"raster_error,omitempty"`
	Pose          *RobotPose `json:"pose"`
	PlannedPath   []Point    `json:"planned_path"`
	TraversedPath []Point    `json:"traversed_path"`
	Obstacles     []Obstacle `json:"obstacles"`
	Waypoints     Waypoints  `json:"waypoints"`
	RenderedAt    time.Time  `json:"rendered_at"`
}
