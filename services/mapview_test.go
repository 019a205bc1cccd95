package services

import (
	"image/color"
	"testing"

	"costmap-backend/algorithms"
	"costmap-backend/models"
)

// scenarioView - 100x50 격자, offset (0,50), 10 px/m
func scenarioView(t *testing.T) *MapView {
	t.Helper()
	cfg := DefaultMapConfig()
	cfg.PixelOffsetX = 0
	cfg.PixelOffsetY = 50
	cfg.PixelsPerMeter = 10

	grid := make([][]float64, 50)
	for y := range grid {
		grid[y] = make([]float64, 100)
	}
	raster, err := NewGridRaster(grid)
	if err != nil {
		t.Fatal(err)
	}

	v := NewMapView("test", cfg)
	v.Resize(100, 50)
	v.SetRaster(raster)
	v.SetConnected(true)
	return v
}

func pixel(v *MapView, x, y int) color.RGBA {
	return v.Canvas().RGBAAt(x, y)
}

func near(c, want color.RGBA, tol uint8) bool {
	diff := func(a, b uint8) uint8 {
		if a > b {
			return a - b
		}
		return b - a
	}
	return diff(c.R, want.R) <= tol && diff(c.G, want.G) <= tol && diff(c.B, want.B) <= tol && diff(c.A, want.A) <= tol
}

func TestMapViewPoseScenario(t *testing.T) {
	v := scenarioView(t)

	if got := v.Transform().ToPixel(algorithms.Point{X: 5, Y: 2}); got.X != 50 || got.Y != 30 {
		t.Fatalf("ToPixel(5,2) = %v, want (50,30)", got)
	}
	if b := v.Canvas().Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("canvas = %v, want 100x50", b)
	}

	msg := jsonMessage(t, models.TopicModelStates, modelStatesMessage(models.RobotPose{X: 5, Y: 2}))
	if _, err := v.HandleMessage(models.EntityPose, msg, at(0)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	v.Frame(at(0))

	// 방향 표시선은 오른쪽(heading 0)으로 나가므로 중심 왼쪽/아래를 본다
	for _, pt := range [][2]int{{47, 30}, {50, 33}} {
		if got := pixel(v, pt[0], pt[1]); !near(got, ColorRobot, 3) {
			t.Errorf("pixel %v = %v, want robot red", pt, got)
		}
	}
	if got := pixel(v, 10, 10); !near(got, algorithms.CostNeutralColor, 0) {
		t.Errorf("background = %v, want neutral grey", got)
	}

	v.Frame(at(2100))
	if v.Store().Pose() != nil {
		t.Fatal("pose not cleared after 2100 ms of silence")
	}
	if got := pixel(v, 47, 30); !near(got, algorithms.CostNeutralColor, 0) {
		t.Errorf("pixel after expiry = %v, want background", got)
	}
}

func TestMapViewObstacleUpsertScenario(t *testing.T) {
	v := scenarioView(t)

	first := jsonMessage(t, models.TopicObstacles, obstacleMessage(models.Obstacle{ID: "A", X: 1, Y: 1, Radius: 0.5}))
	second := jsonMessage(t, models.TopicObstacles, obstacleMessage(models.Obstacle{ID: "A", X: 8, Y: 3, Radius: 0.5}))
	for i, msg := range []Message{first, second} {
		if _, err := v.HandleMessage(models.EntityObstacles, msg, at(i*10)); err != nil {
			t.Fatalf("HandleMessage %d: %v", i, err)
		}
	}

	state := v.State()
	if len(state.Obstacles) != 1 {
		t.Fatalf("obstacles = %v, want exactly one", state.Obstacles)
	}
	if o := state.Obstacles[0]; o.X != 8 || o.Y != 3 {
		t.Fatalf("obstacle = %+v, want second position", o)
	}

	v.Frame(at(20))
	// (8,3) → (80,20), 반경 5px 반투명 빨강
	got := pixel(v, 80, 20)
	if got.R <= got.B || got.R < 150 {
		t.Errorf("obstacle pixel = %v, want reddish blend", got)
	}
	if got := pixel(v, 10, 40); !near(got, algorithms.CostNeutralColor, 0) {
		t.Errorf("old obstacle position = %v, want background", got)
	}
}

func TestMapViewMalformedMessageLeavesState(t *testing.T) {
	v := scenarioView(t)
	before := v.Store().Version()

	bad := Message{Topic: models.TopicPlannedPath, Payload: []byte(`{"poses": [{"pose": {}}]}`)}
	if _, err := v.HandleMessage(models.EntityPlannedPath, bad, at(0)); err == nil {
		t.Fatal("malformed path accepted")
	}
	if v.Store().Version() != before || v.Store().PlannedPath() != nil {
		t.Fatal("malformed message changed state")
	}
}

func TestMapViewDisconnectClearsImmediately(t *testing.T) {
	v := scenarioView(t)
	msg := jsonMessage(t, models.TopicPlannedPath, pathMessage([]models.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}))
	if _, err := v.HandleMessage(models.EntityPlannedPath, msg, at(0)); err != nil {
		t.Fatal(err)
	}

	v.SetConnected(false)
	if v.Store().PlannedPath() != nil {
		t.Fatal("planned path survived disconnect")
	}
	if v.State().Connected {
		t.Fatal("state still reports connected")
	}
}

func TestMapViewCanvasFitsRasterAspect(t *testing.T) {
	v := scenarioView(t)
	v.Resize(800, 600)
	if b := v.Canvas().Bounds(); b.Dx() != 800 || b.Dy() != 400 {
		t.Fatalf("canvas = %v, want 800x400", b)
	}
	v.Resize(800, 300)
	if b := v.Canvas().Bounds(); b.Dx() != 600 || b.Dy() != 300 {
		t.Fatalf("canvas = %v, want 600x300", b)
	}

	// 배율이 바뀌어도 로봇은 같은 상대 위치에 그려진다
	msg := jsonMessage(t, models.TopicModelStates, modelStatesMessage(models.RobotPose{X: 5, Y: 2}))
	v.HandleMessage(models.EntityPose, msg, at(0))
	v.Frame(at(0))
	if got := pixel(v, 300-10, 180); !near(got, ColorRobot, 3) {
		t.Errorf("scaled robot pixel = %v, want red", got)
	}
}

func TestMapViewRasterErrorAndPlaceholder(t *testing.T) {
	v := NewMapView("test", DefaultMapConfig())
	v.Resize(200, 100)
	if b := v.Canvas().Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("canvas before raster = %v, want container size", b)
	}
	if got := pixel(v, 199, 99); !near(got, ColorPlaceholder, 0) {
		t.Fatalf("placeholder pixel = %v, want grey", got)
	}

	v.SetRasterError(&RasterError{Message: MsgGridInvalid})
	if got := v.State().RasterError; got != MsgGridInvalid {
		t.Fatalf("RasterError = %q", got)
	}
}

func TestMapViewReleaseDropsCanvas(t *testing.T) {
	v := scenarioView(t)
	v.Release()
	if v.Canvas() != nil {
		t.Fatal("canvas kept after release")
	}
	if b := v.CloneCanvas().Bounds(); !b.Empty() {
		t.Fatalf("clone after release = %v, want empty", b)
	}
	v.Frame(at(0)) // 해제 후 프레임은 무시
}
