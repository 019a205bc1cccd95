package services

import (
	"testing"
	"time"

	"costmap-backend/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestEntityStoreExpiresAfterTimeout(t *testing.T) {
	s := NewEntityStore()
	s.ApplyPose(models.RobotPose{X: 1, Y: 2}, at(0))
	s.ApplyPlannedPath([]models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, at(0))
	s.UpsertObstacle(models.Obstacle{ID: "A", X: 1, Y: 1, Radius: 0.5}, at(0))

	if expired := s.ExpireStale(at(2000)); len(expired) != 0 {
		t.Fatalf("expired at exactly the timeout: %v", expired)
	}
	if s.Pose() == nil {
		t.Fatal("pose cleared too early")
	}

	expired := s.ExpireStale(at(2001))
	if len(expired) != 3 {
		t.Fatalf("expired = %v, want pose, planned path and obstacles", expired)
	}
	if s.Pose() != nil || s.PlannedPath() != nil || len(s.Obstacles()) != 0 {
		t.Fatal("stale entities not cleared")
	}
	if !s.LastUpdated(models.EntityPose).IsZero() {
		t.Fatal("cleared entity timestamp not reset")
	}
	if expired := s.ExpireStale(at(5000)); len(expired) != 0 {
		t.Fatalf("absent entities expired again: %v", expired)
	}
}

func TestEntityStorePoseThrottle(t *testing.T) {
	s := NewEntityStore()

	if !s.ApplyPose(models.RobotPose{X: 1}, at(0)) {
		t.Fatal("first pose dropped")
	}
	if s.ApplyPose(models.RobotPose{X: 2}, at(10)) {
		t.Fatal("pose inside the minimum interval was applied")
	}
	if got := s.Pose().X; got != 1 {
		t.Fatalf("pose X = %v, want 1", got)
	}
	// 버려진 메시지도 수신 시각은 갱신한다
	if got := s.LastUpdated(models.EntityPose); !got.Equal(at(10)) {
		t.Fatalf("pose timestamp = %v, want %v", got, at(10))
	}
	if !s.ApplyPose(models.RobotPose{X: 3}, at(40)) {
		t.Fatal("pose after the minimum interval dropped")
	}
	if got := s.Pose().X; got != 3 {
		t.Fatalf("pose X = %v, want 3", got)
	}
}

func TestEntityStoreThrottledPosesKeepEntityAlive(t *testing.T) {
	s := NewEntityStore()
	s.ApplyPose(models.RobotPose{X: 1}, at(0))
	for ms := 20; ms <= 3000; ms += 20 {
		s.ApplyPose(models.RobotPose{X: float64(ms)}, at(ms))
	}
	s.ExpireStale(at(3010))
	if s.Pose() == nil {
		t.Fatal("continuously published pose expired")
	}
}

func TestEntityStoreObstacleUpsertByID(t *testing.T) {
	s := NewEntityStore()
	s.UpsertObstacle(models.Obstacle{ID: "A", X: 1, Y: 1, Radius: 1}, at(0))
	s.UpsertObstacle(models.Obstacle{ID: "A", X: 5, Y: 6, Radius: 2}, at(10))
	s.UpsertObstacle(models.Obstacle{ID: "B", X: 0, Y: 0, Radius: 1}, at(20))

	obstacles := s.Obstacles()
	if len(obstacles) != 2 {
		t.Fatalf("len(obstacles) = %d, want 2", len(obstacles))
	}
	if obstacles[0].ID != "A" || obstacles[0].X != 5 || obstacles[0].Y != 6 || obstacles[0].Radius != 2 {
		t.Fatalf("obstacle A = %+v, want second position", obstacles[0])
	}
}

func TestEntityStoreEmptyPathClears(t *testing.T) {
	s := NewEntityStore()
	s.ApplyTraversedPath([]models.Point{{X: 1, Y: 1}}, at(0))
	s.ApplyTraversedPath([]models.Point{}, at(10))
	if s.TraversedPath() != nil {
		t.Fatalf("traversed = %v, want nil", s.TraversedPath())
	}
}

func TestEntityStoreClearAndVersion(t *testing.T) {
	s := NewEntityStore()
	v0 := s.Version()
	s.ApplyPose(models.RobotPose{X: 1}, at(0))
	if s.Version() == v0 {
		t.Fatal("version not bumped on pose")
	}

	v1 := s.Version()
	s.Clear()
	if s.Version() == v1 {
		t.Fatal("version not bumped on clear")
	}
	if s.Pose() != nil {
		t.Fatal("pose survived clear")
	}

	v2 := s.Version()
	s.Clear()
	if s.Version() != v2 {
		t.Fatal("clearing an empty store bumped the version")
	}

	// Clear 후 첫 위치는 레이트 리밋 없이 적용
	if !s.ApplyPose(models.RobotPose{X: 2}, at(5)) {
		t.Fatal("first pose after clear dropped")
	}
}
