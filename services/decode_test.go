package services

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"costmap-backend/models"

	"github.com/fxamacker/cbor/v2"
)

func jsonMessage(t *testing.T, topic string, v any) Message {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return Message{Topic: topic, Payload: payload, Encoding: EncodingJSON}
}

func cborMessage(t *testing.T, topic string, v any) Message {
	t.Helper()
	payload, err := cbor.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return Message{Topic: topic, Payload: payload, Encoding: EncodingCBOR}
}

func TestDecodeModelStatesPose(t *testing.T) {
	pose := models.RobotPose{X: 3, Y: -2, Heading: math.Pi / 2}
	for name, msg := range map[string]Message{
		"json": jsonMessage(t, models.TopicModelStates, modelStatesMessage(pose)),
		"cbor": cborMessage(t, models.TopicModelStates, modelStatesMessage(pose)),
	} {
		got, err := DecodeModelStatesPose(msg, models.RobotModelName)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.X != 3 || got.Y != -2 || math.Abs(got.Heading-math.Pi/2) > 1e-9 {
			t.Errorf("%s: pose = %+v", name, got)
		}
	}
}

func TestDecodeModelStatesMissingModel(t *testing.T) {
	msg := jsonMessage(t, models.TopicModelStates, map[string]any{
		"name": []string{"ground_plane"},
		"pose": []any{rosPose(0, 0, 0)},
	})
	if _, err := DecodeModelStatesPose(msg, models.RobotModelName); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestDecodeModelStatesMalformed(t *testing.T) {
	cases := map[string]any{
		"no pose array":  map[string]any{"name": []string{"roar"}},
		"short pose":     map[string]any{"name": []string{"roar"}, "pose": []any{}},
		"no orientation": map[string]any{"name": []string{"roar"}, "pose": []any{map[string]any{"position": map[string]any{"x": 1, "y": 2}}}},
		"no y": map[string]any{"name": []string{"roar"}, "pose": []any{map[string]any{
			"position":    map[string]any{"x": 1},
			"orientation": map[string]any{"x": 0, "y": 0, "z": 0, "w": 1},
		}}},
		"string x": map[string]any{"name": []string{"roar"}, "pose": []any{map[string]any{
			"position":    map[string]any{"x": "1", "y": 2},
			"orientation": map[string]any{"x": 0, "y": 0, "z": 0, "w": 1},
		}}},
	}
	for name, v := range cases {
		_, err := DecodeModelStatesPose(jsonMessage(t, models.TopicModelStates, v), models.RobotModelName)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", name, err)
		}
	}

	notJSON := Message{Topic: models.TopicModelStates, Payload: []byte("not json")}
	if _, err := DecodeModelStatesPose(notJSON, models.RobotModelName); !errors.Is(err, ErrMalformed) {
		t.Errorf("not json: err = %v, want ErrMalformed", err)
	}
}

func TestDecodePath(t *testing.T) {
	points := []models.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	got, err := DecodePath(jsonMessage(t, models.TopicPlannedPath, pathMessage(points)))
	if err != nil {
		t.Fatalf("DecodePath: %v", err)
	}
	if len(got) != 2 || got[0] != points[0] || got[1] != points[1] {
		t.Fatalf("points = %v, want %v", got, points)
	}

	got, err = DecodePath(cborMessage(t, models.TopicPlannedPath, pathMessage(points)))
	if err != nil || len(got) != 2 {
		t.Fatalf("cbor DecodePath = %v, %v", got, err)
	}

	empty, err := DecodePath(jsonMessage(t, models.TopicPlannedPath, map[string]any{"poses": []any{}}))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty path = %v, %v", empty, err)
	}

	if _, err := DecodePath(jsonMessage(t, models.TopicPlannedPath, map[string]any{})); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing poses err = %v, want ErrMalformed", err)
	}
	bad := map[string]any{"poses": []any{map[string]any{"pose": rosPose(1, 1, 0)}, map[string]any{}}}
	if _, err := DecodePath(jsonMessage(t, models.TopicPlannedPath, bad)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("partial path err = %v, want ErrMalformed", err)
	}
}

func TestDecodeObstacle(t *testing.T) {
	o := models.Obstacle{ID: "A", X: 1.5, Y: -2, Radius: 0.75}
	got, err := DecodeObstacle(jsonMessage(t, models.TopicObstacles, obstacleMessage(o)))
	if err != nil {
		t.Fatalf("DecodeObstacle: %v", err)
	}
	if got != o {
		t.Fatalf("obstacle = %+v, want %+v", got, o)
	}

	// 숫자 ID, position.position 형태, CBOR
	numeric := map[string]any{
		"id":       map[string]any{"data": 7},
		"position": map[string]any{"position": map[string]any{"x": 2.0, "y": 3.0, "z": 0.0}},
		"radius":   map[string]any{"data": 1.25},
	}
	for name, msg := range map[string]Message{
		"json": jsonMessage(t, models.TopicObstacles, numeric),
		"cbor": cborMessage(t, models.TopicObstacles, numeric),
	} {
		got, err := DecodeObstacle(msg)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.ID != "7" || got.X != 2 || got.Y != 3 || got.Radius != 1.25 {
			t.Errorf("%s: obstacle = %+v", name, got)
		}
	}
}

func TestDecodeObstacleMalformed(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"id":       map[string]any{"data": "A"},
			"position": map[string]any{"pose": rosPose(1, 1, 0)},
			"radius":   map[string]any{"data": 1.0},
		}
	}

	noID := valid()
	delete(noID, "id")
	noRadius := valid()
	noRadius["radius"] = map[string]any{}
	negative := valid()
	negative["radius"] = map[string]any{"data": -1.0}
	noPosition := valid()
	noPosition["position"] = map[string]any{"pose": map[string]any{}}
	boolID := valid()
	boolID["id"] = map[string]any{"data": true}

	for name, v := range map[string]map[string]any{
		"no id":           noID,
		"no radius":       noRadius,
		"negative radius": negative,
		"no position":     noPosition,
		"bool id":         boolID,
	} {
		if _, err := DecodeObstacle(jsonMessage(t, models.TopicObstacles, v)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}
