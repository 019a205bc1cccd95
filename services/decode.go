package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"costmap-backend/algorithms"
	"costmap-backend/models"
)

var (
	// ErrMalformed - 필수 필드가 없거나 타입이 맞지 않는 메시지
	ErrMalformed = errors.New("잘못된 메시지")

	// ErrModelNotFound - ModelStates 에 로봇 모델이 없음 (정상적인 상황일 수 있음)
	ErrModelNotFound = errors.New("로봇 모델 없음")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// DecodeModelStatesPose - gazebo_msgs/ModelStates 에서 로봇 위치 추출
func DecodeModelStatesPose(msg Message, modelName string) (models.RobotPose, error) {
	var states models.RosModelStates
	if err := msg.Decode(&states); err != nil {
		return models.RobotPose{}, malformed("ModelStates 디코딩 실패: %v", err)
	}
	if states.Name == nil || states.Pose == nil {
		return models.RobotPose{}, malformed("ModelStates 에 name/pose 배열이 없음")
	}

	index := -1
	for i, name := range states.Name {
		if name == modelName {
			index = i
			break
		}
	}
	if index < 0 {
		return models.RobotPose{}, ErrModelNotFound
	}
	if index >= len(states.Pose) || states.Pose[index] == nil {
		return models.RobotPose{}, malformed("모델 %q 의 pose 가 없음", modelName)
	}

	return poseFromRos(states.Pose[index])
}

// poseFromRos - geometry_msgs/Pose → RobotPose
func poseFromRos(pose *models.RosPose) (models.RobotPose, error) {
	x, y, err := xyFromRos(pose.Position, "pose.position")
	if err != nil {
		return models.RobotPose{}, err
	}

	q := pose.Orientation
	if q == nil || q.X == nil || q.Y == nil || q.Z == nil || q.W == nil {
		return models.RobotPose{}, malformed("pose.orientation 쿼터니언이 불완전함")
	}
	heading := algorithms.Yaw(*q.X, *q.Y, *q.Z, *q.W)
	if math.IsNaN(heading) {
		return models.RobotPose{}, malformed("orientation 에서 yaw 계산 불가")
	}

	return models.RobotPose{X: x, Y: y, Heading: heading}, nil
}

// DecodePath - nav_msgs/Path → 월드 좌표 목록
//
// poses 가 빈 배열이면 빈 경로(삭제)로 본다. 하나라도 잘못된 pose 가
// 있으면 메시지 전체를 버린다.
func DecodePath(msg Message) ([]models.Point, error) {
	var path models.RosPath
	if err := msg.Decode(&path); err != nil {
		return nil, malformed("Path 디코딩 실패: %v", err)
	}
	if path.Poses == nil {
		return nil, malformed("Path 에 poses 배열이 없음")
	}

	poses := *path.Poses
	points := make([]models.Point, 0, len(poses))
	for i, stamped := range poses {
		if stamped == nil || stamped.Pose == nil {
			return nil, malformed("poses[%d].pose 가 없음", i)
		}
		x, y, err := xyFromRos(stamped.Pose.Position, fmt.Sprintf("poses[%d].pose.position", i))
		if err != nil {
			return nil, err
		}
		points = append(points, models.Point{X: x, Y: y})
	}
	return points, nil
}

// DecodeObstacle - roar_msgs/Obstacle → Obstacle
func DecodeObstacle(msg Message) (models.Obstacle, error) {
	var raw models.RosObstacleMsg
	if err := msg.Decode(&raw); err != nil {
		return models.Obstacle{}, malformed("Obstacle 디코딩 실패: %v", err)
	}

	if raw.ID == nil || raw.ID.Data == nil {
		return models.Obstacle{}, malformed("id.data 가 없음")
	}
	id, ok := obstacleID(raw.ID.Data)
	if !ok {
		return models.Obstacle{}, malformed("id.data 타입이 잘못됨 (%T)", raw.ID.Data)
	}

	if raw.Position == nil {
		return models.Obstacle{}, malformed("position 이 없음")
	}
	position := raw.Position.Position
	if raw.Position.Pose != nil {
		position = raw.Position.Pose.Position
	}
	x, y, err := xyFromRos(position, "position.pose.position")
	if err != nil {
		return models.Obstacle{}, err
	}

	if raw.Radius == nil || raw.Radius.Data == nil {
		return models.Obstacle{}, malformed("radius.data 가 없음")
	}
	radius, ok := toFloat(raw.Radius.Data)
	if !ok || radius < 0 {
		return models.Obstacle{}, malformed("radius.data 값이 잘못됨 (%v)", raw.Radius.Data)
	}

	return models.Obstacle{ID: id, X: x, Y: y, Radius: radius}, nil
}

// xyFromRos - 위치의 x, y 필수 검사
func xyFromRos(v *models.RosVector3, field string) (float64, float64, error) {
	if v == nil || v.X == nil || v.Y == nil {
		return 0, 0, malformed("%s.x/y 가 없음", field)
	}
	x, y := *v.X, *v.Y
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, malformed("%s 값이 유한하지 않음", field)
	}
	return x, y, nil
}

// obstacleID - 문자열/숫자 ID 정규화
func obstacleID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case int:
		return strconv.Itoa(id), true
	}
	return "", false
}
