package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryBus - 프로세스 내부 버스 (시뮬레이터, 테스트용)
//
// Publish 는 구독자 핸들러를 호출자 고루틴에서 동기적으로 호출한다.
type MemoryBus struct {
	mu        sync.RWMutex
	listeners busListeners
	topics    map[string]map[*memoryTopic]func(Message)
	connected bool
	closed    bool
}

// NewMemoryBus - 메모리 버스 생성 (연결 안 된 상태)
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*memoryTopic]func(Message)),
	}
}

func (b *MemoryBus) OnConnection(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remover(b.listeners.addConnection(fn))
}

func (b *MemoryBus) OnError(fn func(error)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remover(b.listeners.addError(fn))
}

func (b *MemoryBus) OnClose(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remover(b.listeners.addClose(fn))
}

func (b *MemoryBus) remover(id uint64) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners.remove(id)
	}
}

// ListenerCount - 등록된 연결/에러/종료 콜백 수
func (b *MemoryBus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listeners.count()
}

func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Connect - 연결 수립 알림
func (b *MemoryBus) Connect() {
	b.mu.Lock()
	if b.closed || b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = true
	listeners := b.listeners
	b.mu.Unlock()

	listeners.fireConnection()
}

// Disconnect - 연결 끊김 알림 (err 가 nil 이 아니면 에러도 알림)
//
// 실제 브리지처럼 서버 측 구독은 모두 사라진다.
func (b *MemoryBus) Disconnect(err error) {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	clear(b.topics)
	listeners := b.listeners
	b.mu.Unlock()

	if err != nil {
		listeners.fireError(err)
	}
	listeners.fireClose()
}

// Publish - 토픽 구독자에게 v 를 JSON 으로 전달
func (b *MemoryBus) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}
	return b.PublishRaw(Message{Topic: topic, Payload: payload, Encoding: EncodingJSON})
}

// PublishRaw - 인코딩된 메시지 그대로 전달
func (b *MemoryBus) PublishRaw(msg Message) error {
	b.mu.RLock()
	if !b.connected {
		b.mu.RUnlock()
		return ErrNotConnected
	}
	handlers := make([]func(Message), 0, len(b.topics[msg.Topic]))
	for _, h := range b.topics[msg.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// SubscriberCount - 토픽 구독자 수
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *MemoryBus) Topic(name, messageType string) Topic {
	return &memoryTopic{bus: b, name: name, messageType: messageType}
}

// Close - 버스 종료 (연결 중이면 close 알림)
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.Disconnect(nil)
	return nil
}

type memoryTopic struct {
	bus         *MemoryBus
	name        string
	messageType string
}

func (t *memoryTopic) Name() string { return t.name }

func (t *memoryTopic) Subscribe(handler func(Message)) error {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()

	if !t.bus.connected {
		return ErrNotConnected
	}
	subs, ok := t.bus.topics[t.name]
	if !ok {
		subs = make(map[*memoryTopic]func(Message))
		t.bus.topics[t.name] = subs
	}
	subs[t] = handler
	return nil
}

func (t *memoryTopic) Unsubscribe() error {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()

	if subs, ok := t.bus.topics[t.name]; ok {
		delete(subs, t)
		if len(subs) == 0 {
			delete(t.bus.topics, t.name)
		}
	}
	return nil
}
