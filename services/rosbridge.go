package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"costmap-backend/models"

	"github.com/fasthttp/websocket"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// DefaultRetryDelay - 재연결 대기 시간 (고정)
const DefaultRetryDelay = 3 * time.Second

// RosbridgeOptions - rosbridge 클라이언트 설정
type RosbridgeOptions struct {
	URL         string        // ws://localhost:9090
	Compression string        // "none" | "cbor"
	RetryDelay  time.Duration // 재연결 대기 (기본 3초)
	MaxAttempts int           // 연속 연결 실패 허용 횟수 (0 = 무제한)
	DialTimeout time.Duration // 핸드셰이크 타임아웃 (기본 5초)
}

// RosbridgeClient - rosbridge v2 WebSocket 버스 클라이언트
//
// Run 이 연결 감독 루프를 돌며 끊기면 RetryDelay 후 다시 연결한다.
// 재연결 시 서버 측 구독은 사라지므로 OnConnection 에서 다시 구독해야 한다.
type RosbridgeClient struct {
	opts   RosbridgeOptions
	dialer *websocket.Dialer

	mu        sync.Mutex
	listeners busListeners
	conn      *websocket.Conn
	subs      map[string]*rosTopic // subscription id -> topic
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

// NewRosbridgeClient - 클라이언트 생성 (연결은 Start/Run 에서)
func NewRosbridgeClient(opts RosbridgeOptions) *RosbridgeClient {
	if opts.URL == "" {
		opts.URL = DefaultRosbridgeURL
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == "" {
		opts.Compression = models.RosCompressionNone
	}

	return &RosbridgeClient{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
		subs: make(map[string]*rosTopic),
	}
}

func (c *RosbridgeClient) OnConnection(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remover(c.listeners.addConnection(fn))
}

func (c *RosbridgeClient) OnError(fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remover(c.listeners.addError(fn))
}

func (c *RosbridgeClient) OnClose(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remover(c.listeners.addClose(fn))
}

func (c *RosbridgeClient) remover(id uint64) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.remove(id)
	}
}

func (c *RosbridgeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Start - 감독 루프를 백그라운드로 시작
func (c *RosbridgeClient) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil {
			log.Printf("❌ [Bus] rosbridge 감독 루프 종료: %v", err)
		}
	}()
}

// Run - 연결 감독 루프 (ctx 취소 또는 재시도 한도까지 블록)
func (c *RosbridgeClient) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			log.Printf("⚠️ [Bus] rosbridge 연결 실패 (%d회): %v", failures, err)
			listeners := c.snapshotListeners()
			listeners.fireError(err)
			if c.opts.MaxAttempts > 0 && failures >= c.opts.MaxAttempts {
				return fmt.Errorf("rosbridge 연결 재시도 한도 초과 (%d회): %w", failures, err)
			}
			if !sleepCtx(ctx, c.opts.RetryDelay) {
				return nil
			}
			continue
		}
		failures = 0

		c.mu.Lock()
		c.conn = conn
		listeners := c.listeners
		c.mu.Unlock()

		log.Printf("✅ [Bus] rosbridge 연결됨: %s", c.opts.URL)
		listeners.fireConnection()

		readErr := c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		clear(c.subs)
		listeners = c.listeners
		c.mu.Unlock()
		_ = conn.Close()

		if readErr != nil && ctx.Err() == nil {
			log.Printf("⚠️ [Bus] rosbridge 연결 끊김: %v", readErr)
			listeners.fireError(readErr)
		}
		listeners.fireClose()

		if !sleepCtx(ctx, c.opts.RetryDelay) {
			return nil
		}
		log.Printf("🔄 [Bus] rosbridge 재연결 시도: %s", c.opts.URL)
	}
}

func (c *RosbridgeClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return conn, nil
}

// readLoop - 연결이 끊길 때까지 메시지 수신
func (c *RosbridgeClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		now := time.Now()

		switch messageType {
		case websocket.TextMessage:
			c.handleText(data, now)
		case websocket.BinaryMessage:
			c.handleBinary(data, now)
		}
	}
}

// rosEnvelope - 수신 봉투 (publish / status)
type rosEnvelope struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	Msg   json.RawMessage `json:"msg"`
	Level string          `json:"level"`
}

type rosCBOREnvelope struct {
	Op    string          `cbor:"op"`
	Topic string          `cbor:"topic"`
	Msg   cbor.RawMessage `cbor:"msg"`
}

func (c *RosbridgeClient) handleText(data []byte, now time.Time) {
	var env rosEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("⚠️ [Bus] 잘못된 rosbridge 메시지: %v", err)
		return
	}

	switch env.Op {
	case models.RosOpPublish:
		c.dispatch(Message{Topic: env.Topic, Payload: env.Msg, Encoding: EncodingJSON, ReceivedAt: now})
	case models.RosOpStatus:
		var text string
		_ = json.Unmarshal(env.Msg, &text)
		log.Printf("📡 [Bus] rosbridge status [%s]: %s", env.Level, text)
	}
}

func (c *RosbridgeClient) handleBinary(data []byte, now time.Time) {
	var env rosCBOREnvelope
	if err := cborDecMode.Unmarshal(data, &env); err != nil {
		log.Printf("⚠️ [Bus] 잘못된 CBOR 메시지: %v", err)
		return
	}
	if env.Op != models.RosOpPublish {
		return
	}
	c.dispatch(Message{Topic: env.Topic, Payload: env.Msg, Encoding: EncodingCBOR, ReceivedAt: now})
}

// dispatch - 토픽 구독자에게 전달 (수신 고루틴에서 호출)
func (c *RosbridgeClient) dispatch(msg Message) {
	c.mu.Lock()
	var handlers []func(Message)
	for _, sub := range c.subs {
		if sub.name == msg.Topic && sub.handler != nil {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (c *RosbridgeClient) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *RosbridgeClient) snapshotListeners() busListeners {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners
}

func (c *RosbridgeClient) Topic(name, messageType string) Topic {
	return &rosTopic{client: c, name: name, messageType: messageType}
}

// Close - 감독 루프 중단 및 연결 종료 (멱등)
func (c *RosbridgeClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

// rosTopic - rosbridge 토픽 구독 핸들
type rosTopic struct {
	client      *RosbridgeClient
	name        string
	messageType string

	id      string
	handler func(Message)
}

func (t *rosTopic) Name() string { return t.name }

func (t *rosTopic) Subscribe(handler func(Message)) error {
	if t.id != "" {
		return fmt.Errorf("이미 구독 중: %s", t.name)
	}
	id := fmt.Sprintf("subscribe:%s:%s", t.name, uuid.NewString())

	t.client.mu.Lock()
	if t.client.conn == nil {
		t.client.mu.Unlock()
		return ErrNotConnected
	}
	t.id = id
	t.handler = handler
	t.client.subs[id] = t
	t.client.mu.Unlock()

	err := t.client.send(models.RosSubscribe{
		Op:          models.RosOpSubscribe,
		ID:          id,
		Topic:       t.name,
		Type:        t.messageType,
		Compression: t.client.opts.Compression,
	})
	if err != nil {
		t.client.mu.Lock()
		delete(t.client.subs, id)
		t.client.mu.Unlock()
		t.id = ""
		return fmt.Errorf("구독 요청 실패 (%s): %w", t.name, err)
	}
	return nil
}

func (t *rosTopic) Unsubscribe() error {
	if t.id == "" {
		return nil
	}
	id := t.id
	t.id = ""

	t.client.mu.Lock()
	_, active := t.client.subs[id]
	delete(t.client.subs, id)
	t.client.mu.Unlock()

	if !active {
		return nil
	}
	err := t.client.send(models.RosUnsubscribe{Op: models.RosOpUnsubscribe, ID: id, Topic: t.name})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("구독 해제 실패 (%s): %w", t.name, err)
	}
	return nil
}

// sleepCtx - d 만큼 대기 (ctx 취소되면 false)
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
