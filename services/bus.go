package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// 버스 에러
var (
	ErrNotConnected = errors.New("버스가 연결되어 있지 않습니다")
	ErrBusClosed    = errors.New("버스가 닫혔습니다")
)

// Encoding - 수신 페이로드 인코딩
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

func (e Encoding) String() string {
	if e == EncodingCBOR {
		return "cbor"
	}
	return "json"
}

// Message - 토픽으로 들어온 메시지 (디코딩 전)
type Message struct {
	Topic      string
	Payload    []byte
	Encoding   Encoding
	ReceivedAt time.Time
}

// Decode - 페이로드를 v 로 디코딩
func (m Message) Decode(v any) error {
	if m.Encoding == EncodingCBOR {
		return cborDecMode.Unmarshal(m.Payload, v)
	}
	return json.Unmarshal(m.Payload, v)
}

// Bus - 발행/구독 메시지 버스 연결 핸들
//
// 재연결 정책은 버스 구현(또는 그 감독 루프)의 몫이다.
// 콜백은 버스 내부 고루틴에서 호출될 수 있으므로 받는 쪽에서 직렬화해야 한다.
//
// OnConnection/OnError/OnClose 는 등록 해제 함수를 돌려준다.
type Bus interface {
	OnConnection(fn func()) (remove func())
	OnError(fn func(error)) (remove func())
	OnClose(fn func()) (remove func())
	IsConnected() bool
	Topic(name, messageType string) Topic
	Close() error
}

// Topic - 구독 가능한 토픽 핸들
type Topic interface {
	Name() string
	Subscribe(handler func(Message)) error
	Unsubscribe() error
}

// busListeners - 연결/에러/종료 콜백 목록 (Bus 구현 공용)
//
// 해제는 새 슬라이스를 만들기 때문에 값 복사본은 그대로 순회할 수 있다.
type busListeners struct {
	nextID       uint64
	onConnection []connListener
	onError      []errorListener
	onClose      []connListener
}

type connListener struct {
	id uint64
	fn func()
}

type errorListener struct {
	id uint64
	fn func(error)
}

func (l *busListeners) addConnection(fn func()) uint64 {
	l.nextID++
	l.onConnection = append(l.onConnection, connListener{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *busListeners) addError(fn func(error)) uint64 {
	l.nextID++
	l.onError = append(l.onError, errorListener{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *busListeners) addClose(fn func()) uint64 {
	l.nextID++
	l.onClose = append(l.onClose, connListener{id: l.nextID, fn: fn})
	return l.nextID
}

// remove - id 로 등록된 콜백 제거
func (l *busListeners) remove(id uint64) {
	l.onConnection = withoutConn(l.onConnection, id)
	l.onClose = withoutConn(l.onClose, id)

	kept := make([]errorListener, 0, len(l.onError))
	for _, e := range l.onError {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	l.onError = kept
}

func withoutConn(list []connListener, id uint64) []connListener {
	kept := make([]connListener, 0, len(list))
	for _, c := range list {
		if c.id != id {
			kept = append(kept, c)
		}
	}
	return kept
}

// count - 등록된 콜백 총 개수
func (l busListeners) count() int {
	return len(l.onConnection) + len(l.onError) + len(l.onClose)
}

func (l busListeners) fireConnection() {
	for _, c := range l.onConnection {
		c.fn()
	}
}

func (l busListeners) fireError(err error) {
	for _, e := range l.onError {
		e.fn(err)
	}
}

func (l busListeners) fireClose() {
	for _, c := range l.onClose {
		c.fn()
	}
}

// cborDecMode - rosbridge CBOR 압축 메시지 디코더
//
// any 대상은 map[string]any 로 디코딩해 JSON 경로와 같은 모양을 만든다.
var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("services: CBOR 디코더 초기화 실패: " + err.Error())
	}
}
