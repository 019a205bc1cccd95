package services

import (
	"context"
	"errors"
	"image"
	"log"
	"net/http"
	"sync"
	"time"

	"costmap-backend/models"
)

// ErrViewDestroyed - 종료된 컴포넌트에 요청
var ErrViewDestroyed = errors.New("맵 뷰가 종료되었습니다")

// 이벤트 큐 크기
const componentQueueSize = 256

// ComponentOptions - 맵 컴포넌트 생성 옵션
type ComponentOptions struct {
	ID     string
	Config MapConfig

	// Bus - 메시지 버스 (필수)
	Bus Bus
	// OwnsBus - true 면 Destroy 시 버스도 닫는다
	OwnsBus bool

	HTTPClient *http.Client
	Clock      func() time.Time

	// Notify - 웹 클라이언트로 보낼 메시지 (이벤트 루프 고루틴에서 호출)
	Notify func(models.WebSocketMessage)
	// EventLog - 이벤트 로그 기록
	EventLog func(models.MapEventLog)
}

// MapComponent - 맵 렌더 컴포넌트
//
// 버스 콜백, 프레임 틱, 래스터 로드 완료, 외부 요청은 모두 events 큐로
// 들어가 하나의 고루틴에서 순서대로 처리된다. MapView 는 그 고루틴만 만진다.
type MapComponent struct {
	opts ComponentOptions
	view *MapView
	task *Task

	events   chan func()
	quit     chan struct{}
	loopDone chan struct{}

	// 이하 이벤트 루프 전용
	shown        bool
	topics       []Topic
	detach       []func() // 버스 콜백 등록 해제
	cancelLoad   context.CancelFunc
	lastVersion  uint64
	lastConn     bool
	downReported bool // 끊김을 이미 기록/알림 (재연결 전까지 반복 안 함)

	destroyOnce sync.Once
}

// NewMapComponent - 컴포넌트 생성 (Show 전까지 아무것도 그리지 않음)
func NewMapComponent(opts ComponentOptions) *MapComponent {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &MapComponent{
		opts:     opts,
		view:     NewMapView(opts.ID, opts.Config),
		events:   make(chan func(), componentQueueSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.task = NewTask(opts.Config.FrameInterval(), c.onTick)

	go c.loop()
	return c
}

// ID - 뷰 ID
func (c *MapComponent) ID() string { return c.opts.ID }

func (c *MapComponent) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post - 이벤트 큐에 넣기 (종료 후에는 false)
func (c *MapComponent) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// call - 이벤트 루프에서 fn 실행 후 완료까지 대기
func (c *MapComponent) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.post(func() {
		fn()
		close(done)
	}) {
		return ErrViewDestroyed
	}
	select {
	case <-done:
		return nil
	case <-c.quit:
		return ErrViewDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onTick - 프레임 틱 (큐가 가득 차면 이번 프레임은 건너뜀)
func (c *MapComponent) onTick(time.Time) {
	select {
	case c.events <- c.frame:
	default:
	}
}

// Show - 컨테이너 크기를 받아 표시 시작
//
// 배경 로드를 시작하고, 버스 핸들러를 등록하고, 렌더 루프를 돌린다.
func (c *MapComponent) Show(ctx context.Context, width, height int) error {
	return c.call(ctx, func() {
		c.view.Resize(width, height)
		if c.shown {
			return
		}
		c.shown = true

		c.startRasterLoad()
		c.registerBusHandlers()
		if c.opts.Bus.IsConnected() {
			c.subscribeAll()
		}
		c.task.Start()

		c.logEvent(models.MapEventLog{EventType: models.EventViewShown, Message: "맵 뷰 표시"})
		log.Printf("🗺️ [Map] 뷰 %s 표시 (%dx%d)", c.opts.ID, width, height)
	})
}

// Resize - 컨테이너 크기 변경
func (c *MapComponent) Resize(ctx context.Context, width, height int) error {
	return c.call(ctx, func() {
		c.view.Resize(width, height)
		c.emitState(true)
	})
}

// SetEditMode - 편집 모드 (켜면 렌더 루프 일시정지)
func (c *MapComponent) SetEditMode(ctx context.Context, on bool) error {
	return c.call(ctx, func() {
		c.view.SetEditMode(on)
		if on {
			c.task.Pause()
		} else {
			c.task.Resume()
		}
		msg := "편집 모드 꺼짐"
		if on {
			msg = "편집 모드 켜짐"
		}
		c.logEvent(models.MapEventLog{EventType: models.EventEditModeChanged, Message: msg})
		c.emitState(true)
	})
}

// Snapshot - 현재 프레임 복사본 + 상태
func (c *MapComponent) Snapshot(ctx context.Context) (*image.RGBA, models.MapState, error) {
	var (
		img   *image.RGBA
		state models.MapState
	)
	err := c.call(ctx, func() {
		img = c.view.CloneCanvas()
		state = c.view.State()
	})
	return img, state, err
}

// State - 현재 상태
func (c *MapComponent) State(ctx context.Context) (models.MapState, error) {
	var state models.MapState
	err := c.call(ctx, func() { state = c.view.State() })
	return state, err
}

// Tick - 프레임 하나를 즉시 처리 (렌더 루프와 같은 경로)
func (c *MapComponent) Tick(ctx context.Context) error {
	return c.call(ctx, c.frame)
}

// Sync - 앞서 큐에 들어간 이벤트가 모두 처리될 때까지 대기
func (c *MapComponent) Sync(ctx context.Context) error {
	return c.call(ctx, func() {})
}

// EditMode - 렌더 루프 일시정지 여부
func (c *MapComponent) EditMode() bool { return c.task.Paused() }

// Destroy - 종료 (멱등)
//
// 렌더 루프 중지, 구독 해제, 상태/캔버스 해제 후 소유한 버스를 닫는다.
func (c *MapComponent) Destroy() {
	c.destroyOnce.Do(func() {
		c.task.Stop()

		done := make(chan struct{})
		if c.post(func() {
			c.teardown()
			close(done)
		}) {
			<-done
		}
		close(c.quit)
		<-c.loopDone

		if c.opts.OwnsBus {
			if err := c.opts.Bus.Close(); err != nil {
				log.Printf("⚠️ [Map] 뷰 %s 버스 종료 실패: %v", c.opts.ID, err)
			}
		}
		log.Printf("🛑 [Map] 뷰 %s 종료", c.opts.ID)
	})
}

func (c *MapComponent) teardown() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.unsubscribeAll()
	for _, remove := range c.detach {
		remove()
	}
	c.detach = nil
	c.view.Release()
	c.logEvent(models.MapEventLog{EventType: models.EventViewDestroyed, Message: "맵 뷰 종료"})
}

// ========================================
// 이벤트 루프 내부
// ========================================

func (c *MapComponent) frame() {
	expired := c.view.Frame(c.opts.Clock())
	for _, kind := range expired {
		c.logEvent(models.MapEventLog{
			EventType: models.EventEntityExpired,
			Entity:    string(kind),
			Message:   "갱신 없음 → 삭제",
		})
	}
	c.emitState(false)
}

func (c *MapComponent) startRasterLoad() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLoad = cancel
	source := c.opts.Config.CostmapSourceURL
	client := c.opts.HTTPClient

	go func() {
		raster, err := LoadRaster(ctx, client, source)
		if ctx.Err() != nil {
			return
		}
		c.post(func() { c.applyRaster(raster, err) })
	}()
}

func (c *MapComponent) applyRaster(raster *Raster, err error) {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}

	data := models.RasterData{ViewID: c.opts.ID}
	if err != nil {
		c.view.SetRasterError(err)
		data.Error = c.view.State().RasterError
		log.Printf("❌ [Map] 뷰 %s 배경 로드 실패: %v", c.opts.ID, err)
		c.logEvent(models.MapEventLog{EventType: models.EventRasterFailed, Message: err.Error()})
	} else {
		c.view.SetRaster(raster)
		data.Width, data.Height = raster.Width, raster.Height
		log.Printf("✅ [Map] 뷰 %s 배경 로드 (%s %dx%d)", c.opts.ID, raster.Kind, raster.Width, raster.Height)
		c.logEvent(models.MapEventLog{EventType: models.EventRasterLoaded, Message: string(raster.Kind)})
	}
	c.notify(models.MessageTypeRaster, data)
	c.emitState(true)
}

func (c *MapComponent) registerBusHandlers() {
	bus := c.opts.Bus
	c.detach = append(c.detach,
		bus.OnConnection(func() {
			c.post(c.subscribeAll)
		}),
		bus.OnError(func(err error) {
			c.post(func() { c.handleBusDown(models.EventBusError, err) })
		}),
		bus.OnClose(func() {
			c.post(func() { c.handleBusDown(models.EventBusClosed, nil) })
		}),
	)
}

// subscribeAll - (재)연결 시 이전 토픽 정리 후 네 토픽 구독
func (c *MapComponent) subscribeAll() {
	c.unsubscribeAll()

	subscriptions := []struct {
		kind        models.EntityKind
		name, mtype string
	}{
		{models.EntityPose, models.TopicModelStates, models.TypeModelStates},
		{models.EntityPlannedPath, models.TopicPlannedPath, models.TypePath},
		{models.EntityTraversedPath, models.TopicTraversedPath, models.TypePath},
		{models.EntityObstacles, models.TopicObstacles, models.TypeObstacle},
	}

	for _, sub := range subscriptions {
		kind := sub.kind
		topic := c.opts.Bus.Topic(sub.name, sub.mtype)
		err := topic.Subscribe(func(msg Message) {
			c.post(func() { c.handleMessage(kind, msg) })
		})
		if err != nil {
			log.Printf("⚠️ [Map] 뷰 %s 토픽 구독 실패 (%s): %v", c.opts.ID, sub.name, err)
			continue
		}
		c.topics = append(c.topics, topic)
	}

	c.view.SetConnected(true)
	c.downReported = false
	log.Printf("🔌 [Map] 뷰 %s 버스 연결 (%d개 토픽 구독)", c.opts.ID, len(c.topics))
	c.logEvent(models.MapEventLog{EventType: models.EventBusConnected, Message: "버스 연결"})
	c.notifyConnection("")
	c.emitState(true)
}

func (c *MapComponent) unsubscribeAll() {
	for _, topic := range c.topics {
		if err := topic.Unsubscribe(); err != nil && !errors.Is(err, ErrNotConnected) {
			log.Printf("⚠️ [Map] 뷰 %s 구독 해제 실패 (%s): %v", c.opts.ID, topic.Name(), err)
		}
	}
	c.topics = nil
}

// handleBusDown - 에러/종료 시 동적 상태 즉시 삭제
//
// 이미 끊긴 상태에서 반복되는 연결 실패는 기록/알림하지 않는다.
func (c *MapComponent) handleBusDown(eventType string, err error) {
	c.topics = nil
	if !c.view.connected && c.downReported {
		return
	}
	c.downReported = true
	c.view.SetConnected(false)
	c.view.Redraw()

	reason := "버스 연결 종료"
	if err != nil {
		reason = err.Error()
		log.Printf("❌ [Map] 뷰 %s 버스 에러: %v", c.opts.ID, err)
	} else {
		log.Printf("🔌 [Map] 뷰 %s 버스 연결 종료", c.opts.ID)
	}
	c.logEvent(models.MapEventLog{EventType: eventType, Message: reason})
	c.notifyConnection(reason)
	c.emitState(true)
}

func (c *MapComponent) handleMessage(kind models.EntityKind, msg Message) {
	if !c.view.connected {
		return
	}
	before := 0
	if kind == models.EntityObstacles {
		before = len(c.view.Store().Obstacles())
	}

	applied, err := c.view.HandleMessage(kind, msg, c.opts.Clock())
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return
		}
		log.Printf("⚠️ [Map] 뷰 %s 잘못된 메시지 무시 (%s): %v", c.opts.ID, msg.Topic, err)
		c.logEvent(models.MapEventLog{
			EventType: models.EventMalformed,
			Entity:    string(kind),
			Topic:     msg.Topic,
			Message:   err.Error(),
			DataJSON:  rawJSON(msg),
		})
		return
	}

	// 새 장애물만 기록 (같은 ID 갱신은 제외)
	if applied && kind == models.EntityObstacles && len(c.view.Store().Obstacles()) > before {
		c.logEvent(models.MapEventLog{
			EventType: models.EventObstacleUpsert,
			Entity:    string(kind),
			Topic:     msg.Topic,
			Message:   "새 장애물",
			DataJSON:  rawJSON(msg),
		})
	}
}

// emitState - 상태가 바뀌었으면 (또는 force) map_state 전송
func (c *MapComponent) emitState(force bool) {
	version := c.view.Store().Version()
	if !force && version == c.lastVersion {
		return
	}
	c.lastVersion = version
	c.notify(models.MessageTypeMapState, c.view.State())
}

func (c *MapComponent) notifyConnection(reason string) {
	connected := c.view.connected
	if connected == c.lastConn && reason == "" {
		return
	}
	c.lastConn = connected
	c.notify(models.MessageTypeConnection, models.ConnectionData{
		ViewID:    c.opts.ID,
		Connected: connected,
		Reason:    reason,
	})
}

func (c *MapComponent) notify(msgType string, data interface{}) {
	if c.opts.Notify == nil {
		return
	}
	c.opts.Notify(models.WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: c.opts.Clock().UnixMilli(),
	})
}

func (c *MapComponent) logEvent(entry models.MapEventLog) {
	if c.opts.EventLog == nil {
		return
	}
	entry.ViewID = c.opts.ID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.opts.Clock()
	}
	c.opts.EventLog(entry)
}

// rawJSON - 로그에 남길 원본 페이로드 (CBOR 는 생략)
func rawJSON(msg Message) string {
	if msg.Encoding != EncodingJSON {
		return ""
	}
	return string(msg.Payload)
}
