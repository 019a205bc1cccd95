package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"costmap-backend/handlers"
	"costmap-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	// .env 파일 로드
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env 파일을 찾을 수 없습니다.")
	}

	configPath := flag.String("config", envOr("MAP_CONFIG", "map.yaml"), "맵 설정 YAML 경로")
	addr := flag.String("addr", ":"+envOr("PORT", "3000"), "HTTP 리슨 주소")
	simulate := flag.Bool("simulate", false, "rosbridge 대신 내장 시뮬레이터 사용")
	dropEvery := flag.Duration("drop-every", 0, "시뮬레이터 연결 끊김 주기 (0 = 끊지 않음)")
	idleTimeout := flag.Duration("idle-timeout", 10*time.Minute, "접근 없는 뷰 정리 시간")
	flag.Parse()

	// 맵 설정 (없으면 기본값)
	cfg, err := services.LoadMapConfig(*configPath)
	if err != nil {
		log.Printf("⚠️ %v (기본 설정 사용)", err)
	}
	cfg.ApplyEnv()

	// DB 연결 (선택)
	if err := services.InitDatabase(); err != nil {
		if errors.Is(err, services.ErrDatabaseDisabled) {
			log.Printf("⚠️ %v → 이벤트 로그 저장 안 함", err)
		} else {
			log.Fatalf("❌ DB 초기화 실패: %v", err)
		}
	}
	defer services.CloseDatabase()

	// 로깅 시스템 초기화
	// flushSize: 50 (로그 50개마다 일괄 저장)
	// flushInterval: 10초 (매 10초마다 자동 저장)
	services.InitLogging(50, 10*time.Second)
	defer services.StopLogging() // 종료 시 남은 로그 저장

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 버스: 시뮬레이터(공유 MemoryBus) 또는 뷰마다 rosbridge 연결
	var simulator *services.RobotSimulator
	if *simulate {
		bus := services.NewMemoryBus()
		opts := services.DefaultSimulatorOptions()
		opts.DropEvery = *dropEvery
		opts.DropDuration = 2 * time.Second
		simulator = services.NewRobotSimulator(bus, opts)
		simulator.Start()
		defer simulator.Stop()

		handlers.InitViews(cfg, func(services.MapConfig) (services.Bus, bool) {
			return bus, false
		})
	} else {
		handlers.InitViews(cfg, func(cfg services.MapConfig) (services.Bus, bool) {
			client := services.NewRosbridgeClient(services.RosbridgeOptions{
				URL:         cfg.RosbridgeURL,
				Compression: cfg.Compression,
			})
			client.Start(ctx)
			return client, true
		})
	}
	defer handlers.Views.Shutdown()

	go handlers.Manager.Start()
	go handlers.Views.RunJanitor(ctx, time.Minute, *idleTimeout)

	app := fiber.New(fiber.Config{
		AppName:      "costmap-backend",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: envOr("CORS_ORIGINS", "http://localhost:5173, http://localhost:3000"),
		AllowHeaders: "Origin, Content-Type, Accept, If-None-Match",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Costmap 렌더 서버가 실행 중입니다.")
	})

	api := app.Group("/api")
	api.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			// PNG 는 이미 압축됨
			return strings.HasSuffix(c.Path(), "/frame.png")
		},
	}))

	api.Get("/health", func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "OK",
			"views":   handlers.Views.GetViewCount(),
			"clients": handlers.Manager.TotalClients(),
			"db":      services.GetDB() != nil,
			"time":    time.Now().Format(time.RFC3339),
		}
		if simulator != nil {
			health["simulator"] = simulator.GetStatus()
		}
		return c.JSON(health)
	})

	// 맵 뷰 API
	viewsAPI := api.Group("/views")
	viewsAPI.Post("/", handlers.HandleCreateView)              // 생성 + 표시
	viewsAPI.Get("/", handlers.HandleListViews)                // 목록
	viewsAPI.Delete("/:id", handlers.HandleDeleteView)         // 종료
	viewsAPI.Put("/:id/size", handlers.HandleResizeView)       // 컨테이너 크기
	viewsAPI.Put("/:id/edit-mode", handlers.HandleSetEditMode) // 편집 모드
	viewsAPI.Get("/:id/state", handlers.HandleGetViewState)    // 엔티티 상태
	viewsAPI.Get("/:id/frame.png", handlers.HandleGetFrame)    // 현재 프레임

	// 로그 조회 API
	logsAPI := api.Group("/logs")
	logsAPI.Get("/recent", handlers.HandleGetRecentLogs)     // 최근 로그
	logsAPI.Get("/range", handlers.HandleGetLogsByTimeRange) // 시간 범위
	logsAPI.Get("/type", handlers.HandleGetLogsByEventType)  // 이벤트 타입별
	logsAPI.Get("/stats", handlers.HandleGetLogStats)        // 통계

	// WebSocket
	app.Use("/websocket", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/websocket/views/:id", websocket.New(handlers.HandleViewWebSocket))

	go func() {
		<-ctx.Done()
		log.Println("🛑 서버 종료 중...")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("⚠️ 서버 종료 실패: %v", err)
		}
	}()

	log.Printf("🚀 서버 시작: http://localhost%s", *addr)
	log.Printf("🗺️ 뷰 API: POST http://localhost%s/api/views", *addr)
	log.Printf("📡 WebSocket: ws://localhost%s/websocket/views/:id", *addr)
	log.Printf("💾 로그 API: GET http://localhost%s/api/logs/*", *addr)
	if err := app.Listen(*addr); err != nil {
		log.Printf("❌ 서버 에러: %v", err)
	}
}

// envOr - 환경 변수 (없으면 기본값)
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
