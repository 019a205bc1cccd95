package services

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"time"

	"costmap-backend/algorithms"
	"costmap-backend/models"
)

// MapView - 맵 렌더링 상태 (캔버스, 배경, 동적 엔티티)
//
// 동기화하지 않는다. MapComponent 이벤트 루프 또는 테스트에서
// 한 고루틴으로만 사용한다.
type MapView struct {
	id        string
	transform algorithms.Transform
	waypoints models.Waypoints
	store     *EntityStore

	raster    *Raster
	rasterErr string

	containerW, containerH int
	canvas                 *image.RGBA

	connected  bool
	editMode   bool
	renderedAt time.Time
}

// NewMapView - 설정으로 뷰 생성 (웨이포인트는 여기서 한 번만 파싱)
func NewMapView(id string, cfg MapConfig) *MapView {
	return &MapView{
		id:        id,
		transform: cfg.Transform(),
		waypoints: cfg.Waypoints(),
		store:     NewEntityStore(),
		canvas:    image.NewRGBA(image.Rect(0, 0, 0, 0)),
	}
}

// Resize - 컨테이너 크기 변경 → 캔버스 버퍼 재계산 후 즉시 다시 그림
func (v *MapView) Resize(containerW, containerH int) {
	v.containerW, v.containerH = containerW, containerH

	rw, rh := 0, 0
	if v.raster != nil {
		rw, rh = v.raster.Width, v.raster.Height
	}
	w, h := algorithms.FitCanvas(containerW, containerH, rw, rh)
	if v.canvas == nil || v.canvas.Bounds().Dx() != w || v.canvas.Bounds().Dy() != h {
		v.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	v.Redraw()
}

// SetRaster - 배경 로드 완료 (크기 기록 후 리사이즈 + 다시 그림)
func (v *MapView) SetRaster(r *Raster) {
	v.raster = r
	v.rasterErr = ""
	v.Resize(v.containerW, v.containerH)
}

// SetRasterError - 배경 로드 실패 (캔버스에 인라인 메시지)
func (v *MapView) SetRasterError(err error) {
	msg := MsgImageLoadFailed
	var rerr *RasterError
	if errors.As(err, &rerr) {
		msg = rerr.Message
	}
	v.raster = nil
	v.rasterErr = msg
	v.Redraw()
}

// Frame - 렌더 루프 한 번: stale 검사 직후 다시 그림
func (v *MapView) Frame(now time.Time) []models.EntityKind {
	expired := v.store.ExpireStale(now)
	v.Redraw()
	v.renderedAt = now
	return expired
}

// Redraw - 캔버스 전체 다시 그리기
func (v *MapView) Redraw() {
	if v.canvas == nil {
		return
	}
	RenderFrame(v.canvas, Scene{
		Raster:        v.raster,
		RasterError:   v.rasterErr,
		Transform:     v.transform,
		Pose:          v.store.Pose(),
		PlannedPath:   v.store.PlannedPath(),
		TraversedPath: v.store.TraversedPath(),
		Obstacles:     v.store.Obstacles(),
		Waypoints:     v.waypoints,
	})
}

// HandleMessage - 토픽 메시지 검증 후 엔티티 갱신
//
// 잘못된 메시지는 에러를 반환하고 상태는 건드리지 않는다.
// applied 는 위치 레이트 리밋으로 버려진 경우 false.
func (v *MapView) HandleMessage(kind models.EntityKind, msg Message, now time.Time) (applied bool, err error) {
	switch kind {
	case models.EntityPose:
		pose, err := DecodeModelStatesPose(msg, models.RobotModelName)
		if err != nil {
			return false, err
		}
		return v.store.ApplyPose(pose, now), nil

	case models.EntityPlannedPath:
		points, err := DecodePath(msg)
		if err != nil {
			return false, err
		}
		v.store.ApplyPlannedPath(points, now)
		return true, nil

	case models.EntityTraversedPath:
		points, err := DecodePath(msg)
		if err != nil {
			return false, err
		}
		v.store.ApplyTraversedPath(points, now)
		return true, nil

	case models.EntityObstacles:
		obstacle, err := DecodeObstacle(msg)
		if err != nil {
			return false, err
		}
		v.store.UpsertObstacle(obstacle, now)
		return true, nil
	}
	return false, fmt.Errorf("알 수 없는 엔티티 종류: %s", kind)
}

// SetConnected - 버스 연결 상태 (끊기면 동적 상태 즉시 삭제)
func (v *MapView) SetConnected(connected bool) {
	v.connected = connected
	if !connected {
		v.store.Clear()
	}
}

// SetEditMode - 편집 모드 표시
func (v *MapView) SetEditMode(on bool) { v.editMode = on }

// Store - 엔티티 저장소
func (v *MapView) Store() *EntityStore { return v.store }

// Transform - 좌표 변환
func (v *MapView) Transform() algorithms.Transform { return v.transform }

// Canvas - 현재 캔버스 (직접 수정 금지)
func (v *MapView) Canvas() *image.RGBA { return v.canvas }

// CloneCanvas - 캔버스 복사본
func (v *MapView) CloneCanvas() *image.RGBA {
	if v.canvas == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	clone := image.NewRGBA(v.canvas.Bounds())
	draw.Draw(clone, clone.Bounds(), v.canvas, v.canvas.Bounds().Min, draw.Src)
	return clone
}

// State - 상태 스냅샷
func (v *MapView) State() models.MapState {
	state := models.MapState{
		ViewID:        v.id,
		Version:       v.store.Version(),
		Connected:     v.connected,
		EditMode:      v.editMode,
		RasterError:   v.rasterErr,
		Pose:          v.store.Pose(),
		PlannedPath:   v.store.PlannedPath(),
		TraversedPath: v.store.TraversedPath(),
		Obstacles:     v.store.Obstacles(),
		Waypoints:     v.waypoints,
		RenderedAt:    v.renderedAt,
	}
	if v.canvas != nil {
		state.CanvasWidth = v.canvas.Bounds().Dx()
		state.CanvasHeight = v.canvas.Bounds().Dy()
	}
	if v.raster != nil {
		state.RasterWidth = v.raster.Width
		state.RasterHeight = v.raster.Height
	}
	if state.PlannedPath == nil {
		state.PlannedPath = []models.Point{}
	}
	if state.TraversedPath == nil {
		state.TraversedPath = []models.Point{}
	}
	return state
}

// Release - 캔버스 해제 및 상태 삭제 (종료 시)
func (v *MapView) Release() {
	v.store.Clear()
	v.canvas = nil
	v.connected = false
	log.Printf("🧹 [Map] 뷰 %s 해제", v.id)
}
