package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"costmap-backend/models"
	"costmap-backend/services"

	"github.com/gofiber/fiber/v2"
)

type stateResponse struct {
	Success bool            `json:"success"`
	ViewID  string          `json:"view_id"`
	State   models.MapState `json:"state"`
}

// setupViewsApp - 공유 메모리 버스를 쓰는 뷰 API 앱
func setupViewsApp(t *testing.T) (*fiber.App, *services.MemoryBus) {
	t.Helper()

	bus := services.NewMemoryBus()
	bus.Connect()

	prev := Views
	Views = NewViewManager(ViewManagerOptions{
		Config: services.DefaultMapConfig(),
		NewBus: func(services.MapConfig) (services.Bus, bool) { return bus, false },
	})
	t.Cleanup(func() {
		Views.Shutdown()
		Views = prev
		bus.Close()
	})

	app := fiber.New()
	views := app.Group("/api/views")
	views.Post("/", HandleCreateView)
	views.Get("/", HandleListViews)
	views.Delete("/:id", HandleDeleteView)
	views.Put("/:id/size", HandleResizeView)
	views.Put("/:id/edit-mode", HandleSetEditMode)
	views.Get("/:id/state", HandleGetViewState)
	views.Get("/:id/frame.png", HandleGetFrame)

	logs := app.Group("/api/logs")
	logs.Get("/recent", HandleGetRecentLogs)
	logs.Get("/stats", HandleGetLogStats)
	return app, bus
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string, header map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func createView(t *testing.T, app *fiber.App) stateResponse {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/api/views", `{"width":200,"height":100}`, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created stateResponse
	decodeBody(t, resp, &created)
	if !created.Success || created.ViewID == "" {
		t.Fatalf("create response = %+v", created)
	}
	return created
}

// waitRasterSettled - 배경 로드 결과가 반영될 때까지 대기
func waitRasterSettled(t *testing.T, id string) {
	t.Helper()
	info, err := Views.GetView(id)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		state, err := info.Component.State(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if state.RasterError != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("raster load never settled")
}

func TestCreateAndListViews(t *testing.T) {
	app, bus := setupViewsApp(t)

	created := createView(t, app)
	if !created.State.Connected {
		t.Fatal("view on a connected bus should report connected")
	}
	if created.State.CanvasWidth <= 0 || created.State.CanvasHeight <= 0 {
		t.Fatalf("canvas = %dx%d", created.State.CanvasWidth, created.State.CanvasHeight)
	}
	if bus.SubscriberCount(models.TopicModelStates) != 1 {
		t.Fatalf("subscribers = %d", bus.SubscriberCount(models.TopicModelStates))
	}

	var list struct {
		Count int        `json:"count"`
		Views []ViewInfo `json:"views"`
	}
	decodeBody(t, doRequest(t, app, http.MethodGet, "/api/views", "", nil), &list)
	if list.Count != 1 || list.Views[0].ID != created.ViewID || list.Views[0].Width != 200 {
		t.Fatalf("list = %+v", list)
	}
}

func TestCreateViewRejectsBadSize(t *testing.T) {
	app, _ := setupViewsApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/views", `{"width":0,"height":100}`, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestViewStateReflectsBusMessages(t *testing.T) {
	app, bus := setupViewsApp(t)
	created := createView(t, app)

	err := bus.Publish(models.TopicModelStates, map[string]any{
		"name": []string{models.RobotModelName},
		"pose": []any{map[string]any{
			"position":    map[string]any{"x": 1.5, "y": 2.0, "z": 0.0},
			"orientation": map[string]any{"x": 0.0, "y": 0.0, "z": 0.0, "w": 1.0},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got stateResponse
	decodeBody(t, doRequest(t, app, http.MethodGet, "/api/views/"+created.ViewID+"/state", "", nil), &got)
	if got.State.Pose == nil || got.State.Pose.X != 1.5 || got.State.Pose.Y != 2.0 {
		t.Fatalf("pose = %+v", got.State.Pose)
	}
}

func TestResizeAndEditMode(t *testing.T) {
	app, _ := setupViewsApp(t)
	created := createView(t, app)
	base := "/api/views/" + created.ViewID

	resp := doRequest(t, app, http.MethodPut, base+"/size", `{"width":400,"height":300}`, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("resize status = %d", resp.StatusCode)
	}
	var resized stateResponse
	decodeBody(t, resp, &resized)
	if resized.State.CanvasWidth > 400 || resized.State.CanvasHeight > 300 {
		t.Fatalf("canvas %dx%d exceeds container", resized.State.CanvasWidth, resized.State.CanvasHeight)
	}

	var edited stateResponse
	decodeBody(t, doRequest(t, app, http.MethodPut, base+"/edit-mode", `{"edit_mode":true}`, nil), &edited)
	if !edited.State.EditMode {
		t.Fatal("edit mode not applied")
	}
}

func TestFrameETag(t *testing.T) {
	app, _ := setupViewsApp(t)
	created := createView(t, app)
	waitRasterSettled(t, created.ViewID)
	path := "/api/views/" + created.ViewID + "/frame.png"

	resp := doRequest(t, app, http.MethodGet, path, "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("frame status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	etag := resp.Header.Get(fiber.HeaderETag)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if etag == "" || len(body) == 0 {
		t.Fatalf("etag = %q, body = %d bytes", etag, len(body))
	}

	resp = doRequest(t, app, http.MethodGet, path, "", map[string]string{fiber.HeaderIfNoneMatch: etag})
	if resp.StatusCode != fiber.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", resp.StatusCode)
	}
}

func TestDeleteView(t *testing.T) {
	app, bus := setupViewsApp(t)
	created := createView(t, app)

	resp := doRequest(t, app, http.MethodDelete, "/api/views/"+created.ViewID, "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if n := bus.SubscriberCount(models.TopicModelStates); n != 0 {
		t.Fatalf("subscribers after delete = %d", n)
	}
	if !bus.IsConnected() {
		t.Fatal("shared bus closed by view")
	}

	for _, path := range []string{"/state", "/frame.png"} {
		resp := doRequest(t, app, http.MethodGet, "/api/views/"+created.ViewID+path, "", nil)
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
	resp = doRequest(t, app, http.MethodDelete, "/api/views/"+created.ViewID, "", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestLogsRequireViewAndDatabase(t *testing.T) {
	app, _ := setupViewsApp(t)
	services.CloseDatabase()

	if resp := doRequest(t, app, http.MethodGet, "/api/logs/recent", "", nil); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("missing view_id status = %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, http.MethodGet, "/api/logs/stats?view_id=x", "", nil); resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("disabled DB status = %d", resp.StatusCode)
	}
}

func TestMatchETag(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`"x"`, false},
		{"*", true},
	}
	for _, tt := range tests {
		if got := matchETag(tt.header, `"abc"`); got != tt.want {
			t.Errorf("matchETag(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
