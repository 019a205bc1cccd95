package services

import (
	"sort"
	"time"

	"costmap-backend/models"
)

const (
	// StaleTimeout - 이 시간 동안 갱신이 없으면 엔티티를 지운다
	StaleTimeout = 2000 * time.Millisecond

	// PoseMinInterval - 위치 적용 최소 간격 (~30Hz)
	PoseMinInterval = 33 * time.Millisecond
)

// EntityStore - 동적 엔티티(위치, 경로, 장애물) 저장소
//
// 모든 엔티티는 마지막 갱신 시각을 갖고, now - updated <= StaleTimeout 인
// 동안만 유효하다. 시각이 zero 이면 "한 번도 없음".
//
// 동기화하지 않는다. 맵 컴포넌트의 단일 이벤트 루프에서만 접근한다.
type EntityStore struct {
	pose            *models.RobotPose
	poseUpdated     time.Time
	lastPoseApplied time.Time

	planned        []models.Point
	plannedUpdated time.Time

	traversed        []models.Point
	traversedUpdated time.Time

	obstacles        map[string]models.Obstacle
	obstaclesUpdated time.Time

	staleTimeout time.Duration
	poseInterval time.Duration
	version      uint64
}

// NewEntityStore - 저장소 생성
func NewEntityStore() *EntityStore {
	return &EntityStore{
		obstacles:    make(map[string]models.Obstacle),
		staleTimeout: StaleTimeout,
		poseInterval: PoseMinInterval,
	}
}

// ApplyPose - 로봇 위치 적용 (레이트 리밋)
//
// 최소 간격 안에 들어온 메시지는 버리지만 수신 시각은 갱신한다.
// 발행은 계속되고 있으므로 stale 로 판단하면 안 된다.
func (s *EntityStore) ApplyPose(pose models.RobotPose, now time.Time) bool {
	s.poseUpdated = now
	if !s.lastPoseApplied.IsZero() && now.Sub(s.lastPoseApplied) < s.poseInterval {
		return false
	}
	s.lastPoseApplied = now
	p := pose
	s.pose = &p
	s.version++
	return true
}

// ApplyPlannedPath - 계획 경로 통째로 교체 (빈 경로는 삭제)
func (s *EntityStore) ApplyPlannedPath(points []models.Point, now time.Time) {
	s.planned = clonePoints(points)
	s.plannedUpdated = now
	s.version++
}

// ApplyTraversedPath - 주행 경로 통째로 교체 (빈 경로는 삭제)
func (s *EntityStore) ApplyTraversedPath(points []models.Point, now time.Time) {
	s.traversed = clonePoints(points)
	s.traversedUpdated = now
	s.version++
}

// UpsertObstacle - ID 기준 장애물 추가/교체
func (s *EntityStore) UpsertObstacle(obstacle models.Obstacle, now time.Time) {
	s.obstacles[obstacle.ID] = obstacle
	s.obstaclesUpdated = now
	s.version++
}

// ExpireStale - 타임아웃 지난 엔티티 삭제
//
// 지워진 엔티티 종류를 반환한다. 삭제된 엔티티의 시각은 zero 로 되돌린다.
func (s *EntityStore) ExpireStale(now time.Time) []models.EntityKind {
	var expired []models.EntityKind

	if s.isStale(s.poseUpdated, now) {
		s.pose = nil
		s.poseUpdated = time.Time{}
		expired = append(expired, models.EntityPose)
	}
	if s.isStale(s.plannedUpdated, now) {
		s.planned = nil
		s.plannedUpdated = time.Time{}
		expired = append(expired, models.EntityPlannedPath)
	}
	if s.isStale(s.traversedUpdated, now) {
		s.traversed = nil
		s.traversedUpdated = time.Time{}
		expired = append(expired, models.EntityTraversedPath)
	}
	if s.isStale(s.obstaclesUpdated, now) {
		clear(s.obstacles)
		s.obstaclesUpdated = time.Time{}
		expired = append(expired, models.EntityObstacles)
	}

	if len(expired) > 0 {
		s.version++
	}
	return expired
}

func (s *EntityStore) isStale(updated, now time.Time) bool {
	return !updated.IsZero() && now.Sub(updated) > s.staleTimeout
}

// Clear - 모든 동적 엔티티 즉시 삭제 (연결 끊김, 종료)
func (s *EntityStore) Clear() {
	changed := s.pose != nil || len(s.planned) > 0 || len(s.traversed) > 0 || len(s.obstacles) > 0

	s.pose = nil
	s.poseUpdated = time.Time{}
	s.lastPoseApplied = time.Time{}
	s.planned = nil
	s.plannedUpdated = time.Time{}
	s.traversed = nil
	s.traversedUpdated = time.Time{}
	clear(s.obstacles)
	s.obstaclesUpdated = time.Time{}

	if changed {
		s.version++
	}
}

// Pose - 현재 위치 (없으면 nil)
func (s *EntityStore) Pose() *models.RobotPose {
	if s.pose == nil {
		return nil
	}
	p := *s.pose
	return &p
}

// PlannedPath - 계획 경로 복사본
func (s *EntityStore) PlannedPath() []models.Point { return clonePoints(s.planned) }

// TraversedPath - 주행 경로 복사본
func (s *EntityStore) TraversedPath() []models.Point { return clonePoints(s.traversed) }

// Obstacles - 장애물 목록 (ID 순)
func (s *EntityStore) Obstacles() []models.Obstacle {
	result := make([]models.Obstacle, 0, len(s.obstacles))
	for _, o := range s.obstacles {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// LastUpdated - 엔티티 마지막 갱신 시각 (zero = 없음)
func (s *EntityStore) LastUpdated(kind models.EntityKind) time.Time {
	switch kind {
	case models.EntityPose:
		return s.poseUpdated
	case models.EntityPlannedPath:
		return s.plannedUpdated
	case models.EntityTraversedPath:
		return s.traversedUpdated
	case models.EntityObstacles:
		return s.obstaclesUpdated
	}
	return time.Time{}
}

// Version - 상태가 바뀔 때마다 증가
func (s *EntityStore) Version() uint64 { return s.version }

func clonePoints(points []models.Point) []models.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]models.Point, len(points))
	copy(out, points)
	return out
}
