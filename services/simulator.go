package services

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"costmap-backend/models"
)

// SimulatorOptions - 시뮬레이터 설정
type SimulatorOptions struct {
	Rate          time.Duration // 위치 발행 주기
	Radius        float64       // 주행 궤적 반경 (미터)
	CenterX       float64
	CenterY       float64
	Speed         float64 // 각속도 (rad/s)
	DropEvery     time.Duration
	DropDuration  time.Duration
	TraversedSize int // 주행 경로 최대 점 수
}

// DefaultSimulatorOptions - 기본 시뮬레이터 설정
func DefaultSimulatorOptions() SimulatorOptions {
	return SimulatorOptions{
		Rate:          100 * time.Millisecond,
		Radius:        8.0,
		CenterX:       10.0,
		CenterY:       10.0,
		Speed:         0.3,
		TraversedSize: 300,
	}
}

// RobotSimulator - rosbridge 없이 로봇 토픽을 흉내 내는 시뮬레이터
//
// MemoryBus 에 ModelStates, 계획 경로, 주행 경로, 장애물을 발행한다.
// DropEvery 가 설정되면 주기적으로 연결을 끊었다가 다시 붙인다.
type RobotSimulator struct {
	IsRunning bool

	bus  *MemoryBus
	opts SimulatorOptions
	rng  *rand.Rand

	// 시뮬레이션 상태
	angle     float64
	pose      models.RobotPose
	traversed []models.Point
	obstacles []models.Obstacle

	// 제어
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.RWMutex
}

// NewRobotSimulator - 시뮬레이터 생성
func NewRobotSimulator(bus *MemoryBus, opts SimulatorOptions) *RobotSimulator {
	if opts.Rate <= 0 {
		opts.Rate = DefaultSimulatorOptions().Rate
	}
	if opts.TraversedSize <= 0 {
		opts.TraversedSize = DefaultSimulatorOptions().TraversedSize
	}
	s := &RobotSimulator{
		bus:  bus,
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.obstacles = s.generateObstacles()
	s.pose = s.poseAt(0)
	return s
}

// Start - 시뮬레이션 시작
func (s *RobotSimulator) Start() {
	s.mu.Lock()
	if s.IsRunning {
		s.mu.Unlock()
		return
	}
	s.IsRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.bus.Connect()
	log.Println("🚀 로봇 시뮬레이터 시작")

	go s.runSimulation()
}

// Stop - 시뮬레이션 중지
func (s *RobotSimulator) Stop() {
	s.mu.Lock()
	if !s.IsRunning {
		s.mu.Unlock()
		return
	}
	s.IsRunning = false
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	log.Println("🛑 로봇 시뮬레이터 중지")
}

// runSimulation - 시뮬레이션 메인 루프
func (s *RobotSimulator) runSimulation() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Rate)
	defer ticker.Stop()

	pathTicker := time.NewTicker(time.Second) // 경로/장애물은 1초마다
	defer pathTicker.Stop()

	var dropC <-chan time.Time
	if s.opts.DropEvery > 0 {
		dropTicker := time.NewTicker(s.opts.DropEvery)
		defer dropTicker.Stop()
		dropC = dropTicker.C
	}

	last := time.Now()
	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.Step(now.Sub(last))
			last = now
		case <-pathTicker.C:
			s.PublishPaths()
		case <-dropC:
			s.dropConnection()
		}
	}
}

// Step - dt 만큼 진행 후 ModelStates 발행
func (s *RobotSimulator) Step(dt time.Duration) {
	s.mu.Lock()
	s.angle += s.opts.Speed * dt.Seconds()
	s.pose = s.poseAt(s.angle)
	s.traversed = append(s.traversed, models.Point{X: s.pose.X, Y: s.pose.Y})
	if len(s.traversed) > s.opts.TraversedSize {
		s.traversed = s.traversed[len(s.traversed)-s.opts.TraversedSize:]
	}
	pose := s.pose
	s.mu.Unlock()

	s.publish(models.TopicModelStates, modelStatesMessage(pose))
}

// PublishPaths - 계획 경로, 주행 경로, 장애물 발행
func (s *RobotSimulator) PublishPaths() {
	s.mu.RLock()
	planned := make([]models.Point, 0, 20)
	for i := 1; i <= 20; i++ {
		p := s.poseAt(s.angle + float64(i)*0.1)
		planned = append(planned, models.Point{X: p.X, Y: p.Y})
	}
	traversed := append([]models.Point(nil), s.traversed...)
	obstacles := append([]models.Obstacle(nil), s.obstacles...)
	s.mu.RUnlock()

	s.publish(models.TopicPlannedPath, pathMessage(planned))
	s.publish(models.TopicTraversedPath, pathMessage(traversed))
	for _, o := range obstacles {
		s.publish(models.TopicObstacles, obstacleMessage(o))
	}
}

// dropConnection - 연결 끊김 흉내
func (s *RobotSimulator) dropConnection() {
	log.Println("🔌 시뮬레이터 연결 끊김")
	s.bus.Disconnect(fmt.Errorf("시뮬레이터 연결 끊김"))

	select {
	case <-s.stopChan:
		return
	case <-time.After(s.opts.DropDuration):
	}

	s.mu.Lock()
	s.traversed = nil
	s.mu.Unlock()
	s.bus.Connect()
	log.Println("🔌 시뮬레이터 재연결")
}

func (s *RobotSimulator) publish(topic string, v any) {
	if err := s.bus.Publish(topic, v); err != nil && err != ErrNotConnected {
		log.Printf("⚠️ 시뮬레이터 발행 실패 (%s): %v", topic, err)
	}
}

// poseAt - 원 궤적 위의 위치 (진행 방향을 heading 으로)
func (s *RobotSimulator) poseAt(angle float64) models.RobotPose {
	return models.RobotPose{
		X:       s.opts.CenterX + s.opts.Radius*math.Cos(angle),
		Y:       s.opts.CenterY + s.opts.Radius*math.Sin(angle),
		Heading: angle + math.Pi/2,
	}
}

// GetStatus - 현재 상태 반환
func (s *RobotSimulator) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"running":   s.IsRunning,
		"connected": s.bus.IsConnected(),
		"pose":      s.pose,
		"traversed": len(s.traversed),
		"obstacles": len(s.obstacles),
	}
}

// generateObstacles - 궤적 주변에 장애물 생성
func (s *RobotSimulator) generateObstacles() []models.Obstacle {
	obstacles := make([]models.Obstacle, 3)
	for i := range obstacles {
		angle := s.rng.Float64() * 2 * math.Pi
		dist := s.opts.Radius + (s.rng.Float64()*2-1)*2
		obstacles[i] = models.Obstacle{
			ID:     fmt.Sprintf("obs-%d", i+1),
			X:      s.opts.CenterX + dist*math.Cos(angle),
			Y:      s.opts.CenterY + dist*math.Sin(angle),
			Radius: 0.3 + s.rng.Float64()*0.7,
		}
	}
	return obstacles
}

// ========================================
// ROS 메시지 모양 생성 (rosbridge JSON 과 동일)
// ========================================

func rosPose(x, y, heading float64) map[string]any {
	return map[string]any{
		"position": map[string]any{"x": x, "y": y, "z": 0.0},
		"orientation": map[string]any{
			"x": 0.0,
			"y": 0.0,
			"z": math.Sin(heading / 2),
			"w": math.Cos(heading / 2),
		},
	}
}

func modelStatesMessage(pose models.RobotPose) map[string]any {
	return map[string]any{
		"name": []string{"ground_plane", models.RobotModelName},
		"pose": []any{
			rosPose(0, 0, 0),
			rosPose(pose.X, pose.Y, pose.Heading),
		},
	}
}

func pathMessage(points []models.Point) map[string]any {
	poses := make([]any, len(points))
	for i, p := range points {
		poses[i] = map[string]any{"pose": rosPose(p.X, p.Y, 0)}
	}
	return map[string]any{
		"header": map[string]any{"frame_id": "map"},
		"poses":  poses,
	}
}

func obstacleMessage(o models.Obstacle) map[string]any {
	return map[string]any{
		"id": map[string]any{"data": o.ID},
		"position": map[string]any{
			"pose": rosPose(o.X, o.Y, 0),
		},
		"radius": map[string]any{"data": o.Radius},
	}
}
