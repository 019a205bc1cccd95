package models

// ========================================
// rosbridge v2 프로토콜 봉투
// ========================================
const (
	RosOpSubscribe   = "subscribe"
	RosOpUnsubscribe = "unsubscribe"
	RosOpPublish     = "publish"
	RosOpStatus      = "status"

	RosCompressionNone = "none"
	RosCompressionCBOR = "cbor"
)

// RosSubscribe - 토픽 구독 요청
type RosSubscribe struct {
	Op           string `json:"op"`
	ID           string `json:"id"`
	Topic        string `json:"topic"`
	Type         string `json:"type,omitempty"`
	ThrottleRate int    `json:"throttle_rate,omitempty"` // ms
	QueueLength  int    `json:"queue_length,omitempty"`
	Compression  string `json:"compression,omitempty"` // "none" | "cbor"
}

// RosUnsubscribe - 토픽 구독 해제 요청
type RosUnsubscribe struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// RosStatus - 서버 상태/오류 알림
type RosStatus struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

// ========================================
// 고정 토픽 이름 (런타임 변경 불가)
// ========================================
const (
	TopicModelStates   = "/gazebo/model_states"
	TypeModelStates    = "gazebo_msgs/ModelStates"
	TopicPlannedPath   = "/Path"
	TopicTraversedPath = "/traversed_path"
	TypePath           = "nav_msgs/Path"
	TopicObstacles     = "/obstacles"
	TypeObstacle       = "roar_msgs/Obstacle"

	// ModelStates 안에서 찾을 로봇 모델 이름
	RobotModelName = "roar"
)

// ========================================
// ROS 메시지 (필수 필드 검증을 위해 포인터 사용)
// ========================================

// RosVector3 - geometry_msgs/Point
type RosVector3 struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// RosQuaternion - geometry_msgs/Quaternion
type RosQuaternion struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
	W *float64 `json:"w"`
}

// RosPose - geometry_msgs/Pose
type RosPose struct {
	Position    *RosVector3    `json:"position"`
	Orientation *RosQuaternion `json:"orientation"`
}

// RosPoseStamped - geometry_msgs/PoseStamped
type RosPoseStamped struct {
	Pose *RosPose `json:"pose"`
}

// RosModelStates - gazebo_msgs/ModelStates
type RosModelStates struct {
	Name []string   `json:"name"`
	Pose []*RosPose `json:"pose"`
}

// RosPath - nav_msgs/Path
type RosPath struct {
	Poses *[]*RosPoseStamped `json:"poses"`
}

// RosData - std_msgs/* 래퍼 ({data: ...})
type RosData struct {
	Data any `json:"data"`
}

// RosObstacleMsg - roar_msgs/Obstacle
type RosObstacleMsg struct {
	ID       *RosData        `json:"id"`
	Position *RosObstaclePos `json:"position"`
	Radius   *RosData        `json:"radius"`
}

// RosObstaclePos - 장애물 위치 (PoseStamped 또는 Pose 형태 모두 허용)
type RosObstaclePos struct {
	Pose     *RosPose    `json:"pose"`
	Position *RosVector3 `json:"position"`
}
