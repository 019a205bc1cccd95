package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"costmap-backend/models"

	"github.com/gofiber/websocket/v2"
)

// Client - 뷰를 구독 중인 웹 클라이언트
type Client struct {
	Conn   *websocket.Conn
	ViewID string

	writeMu sync.Mutex
}

// WriteJSON - 연결별 쓰기 직렬화
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// viewMessage - 특정 뷰 구독자에게 보낼 메시지
type viewMessage struct {
	viewID string
	msg    models.WebSocketMessage
}

// 클라이언트 관리자
type ClientManager struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan viewMessage
	register   chan *Client
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

// NewClientManager - 클라이언트 관리자 생성
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan viewMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
	}
}

// 전역 클라이언트 관리자
var Manager = NewClientManager()

// 클라이언트 관리 시작
func (manager *ClientManager) Start() {
	for {
		select {
		case client := <-manager.register:
			manager.mutex.Lock()
			manager.clients[client.Conn] = client
			manager.mutex.Unlock()
			log.Printf("클라이언트 등록: 뷰 %s (%s)", client.ViewID, client.Conn.RemoteAddr())

		case conn := <-manager.unregister:
			manager.remove(conn)

		case message := <-manager.broadcast:
			manager.handleBroadcast(message)
		}
	}
}

func (manager *ClientManager) remove(conn *websocket.Conn) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if client, ok := manager.clients[conn]; ok {
		delete(manager.clients, conn)
		_ = conn.Close()
		log.Printf("클라이언트 해제: 뷰 %s (%s)", client.ViewID, conn.RemoteAddr())
	}
}

func (manager *ClientManager) handleBroadcast(message viewMessage) {
	manager.mutex.RLock()
	var failed []*websocket.Conn
	for conn, client := range manager.clients {
		if client.ViewID != message.viewID {
			continue
		}
		if err := client.WriteJSON(message.msg); err != nil {
			log.Printf("전송 실패 (뷰 %s): %v", client.ViewID, err)
			failed = append(failed, conn)
		}
	}
	manager.mutex.RUnlock()

	for _, conn := range failed {
		manager.remove(conn)
	}
}

// BroadcastToView - 뷰 구독자에게 전송 (채널이 가득 차면 버림)
//
// 맵 컴포넌트 이벤트 루프에서 호출되므로 막히면 안 된다.
func (manager *ClientManager) BroadcastToView(viewID string, msg models.WebSocketMessage) {
	select {
	case manager.broadcast <- viewMessage{viewID: viewID, msg: msg}:
	default:
		log.Printf("⚠️ broadcast 채널 가득 참 (뷰 %s, %s)", viewID, msg.Type)
	}
}

// GetClientCount - 뷰별 클라이언트 수
func (manager *ClientManager) GetClientCount() map[string]int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	count := make(map[string]int)
	for _, client := range manager.clients {
		count[client.ViewID]++
	}
	return count
}

// TotalClients - 전체 클라이언트 수
func (manager *ClientManager) TotalClients() int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.clients)
}

// HandleViewWebSocket - 뷰 구독 WebSocket
//
// 연결 즉시 system_info 와 현재 map_state 를 보내고,
// 이후 상태가 바뀔 때마다 map_state 가 push 된다.
// 클라이언트는 resize, edit_mode, ping 을 보낼 수 있다.
func HandleViewWebSocket(c *websocket.Conn) {
	viewID := c.Params("id")
	info, err := Views.GetView(viewID)
	if err != nil {
		_ = c.WriteJSON(fiberError(err.Error()))
		_ = c.Close()
		return
	}

	client := &Client{Conn: c, ViewID: viewID}
	Manager.register <- client

	defer func() {
		Manager.unregister <- c
	}()

	// 연결 확인 메시지 전송
	_ = client.WriteJSON(models.WebSocketMessage{
		Type:      models.MessageTypeSystemInfo,
		Data:      systemInfo(viewID),
		Timestamp: time.Now().UnixMilli(),
	})
	ctx, cancel := requestContextWithCancel()
	state, err := info.Component.State(ctx)
	cancel()
	if err == nil {
		_ = client.WriteJSON(models.WebSocketMessage{
			Type:      models.MessageTypeMapState,
			Data:      state,
			Timestamp: time.Now().UnixMilli(),
		})
	}

	for {
		var msg models.WebSocketMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Printf("웹 메시지 읽기 오류: %v", err)
			break
		}
		Views.Touch(viewID)

		if err := handleClientMessage(client, info, msg); err != nil {
			log.Printf("⚠️ 웹 메시지 처리 실패 (%s): %v", msg.Type, err)
		}
	}
}

func handleClientMessage(client *Client, info *ViewInfo, msg models.WebSocketMessage) error {
	ctx, cancel := requestContextWithCancel()
	defer cancel()

	switch msg.Type {
	case models.MessageTypeResize:
		var cmd models.ResizeCommand
		if err := decodeData(msg.Data, &cmd); err != nil {
			return err
		}
		return Views.ResizeView(ctx, info.ID, cmd.Width, cmd.Height)

	case models.MessageTypeEditMode:
		var cmd models.EditModeCommand
		if err := decodeData(msg.Data, &cmd); err != nil {
			return err
		}
		return info.Component.SetEditMode(ctx, cmd.EditMode)

	case models.MessageTypePing:
		return client.WriteJSON(models.WebSocketMessage{
			Type:      models.MessageTypeSystemInfo,
			Data:      systemInfo(info.ID),
			Timestamp: time.Now().UnixMilli(),
		})

	default:
		return fmt.Errorf("알 수 없는 메시지 타입: %s", msg.Type)
	}
}

// decodeData - WebSocket data 필드(map)를 구조체로 변환
func decodeData(data interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func systemInfo(viewID string) models.SystemInfo {
	return models.SystemInfo{
		ViewID:           viewID,
		ConnectedClients: Manager.GetClientCount()[viewID],
		ActiveViews:      Views.GetViewCount(),
		ServerTime:       time.Now(),
		Uptime:           int64(time.Since(startedAt).Seconds()),
	}
}
