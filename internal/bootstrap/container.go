package bootstrap

import (
	"context"
	"log"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/controller"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/repository/redisrepo"
	"ai-lecture-be/internal/service"
	"ai-lecture-be/internal/websocket"
	"ai-lecture-be/pkg/breaker"
	"ai-lecture-be/pkg/bridge"
	"ai-lecture-be/pkg/cache"
	"ai-lecture-be/pkg/jobs"
	"ai-lecture-be/pkg/lecture"
	"ai-lecture-be/pkg/llm/factory"

	"github.com/redis/go-redis/v9"
)

// Container wires the rest process: HTTP surface, websocket hub, delivery
// manager, bridge listener and the embedded pipeline workers.
type Container struct {
	// Controllers
	LectureController controller.ILectureController

	// Background services (exposed for main.go to run)
	ConsumerService service.IConsumerService
	PipelineService service.IPipelineService
	DeliveryService *service.DeliveryService
	BridgeListener  *bridge.Listener
	JobSubscriber   *jobs.Subscriber
	JobPublisher    *jobs.Publisher
	LocalBus        *bridge.LocalBus

	// WebSockets
	WebSocketHub *websocket.Hub

	Logger logger.ILogger
}

func NewContainer(cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	rdb := newRedisClient(cfg)

	// Job queue (durable, at-least-once)
	jobPub, err := jobs.NewPublisher(cfg.App.NatsURL, cfg.Pipeline.StreamName,
		[]string{cfg.Pipeline.PlanSubject, cfg.Pipeline.GenerateSubject})
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect NATS publisher: %v", err)
	}
	jobSub, err := jobs.NewSubscriber(cfg.App.NatsURL, cfg.Pipeline.StreamName)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect NATS subscriber: %v", err)
	}

	// WebSocket hub + delivery
	deliveryLogger := logger.NewIsolatedLogger(cfg.App.DeliveryLogPath)
	wsHub := websocket.NewHub(deliveryLogger)
	go wsHub.Run()

	sessionRepo := redisrepo.NewSessionRepository(rdb, cfg.Delivery.ParkTTL)
	deliveryService := service.NewDeliveryService(
		service.NewHubTransport(wsHub),
		sessionRepo,
		cfg.Delivery,
		deliveryLogger,
	)
	deliveryService.StartSweep()

	// Replay parked content the moment a client (re)joins its group.
	wsHub.OnSessionJoin = func(sessionID string) {
		deliveryService.CheckPendingDeliveries(context.Background(), sessionID)
		deliveryService.FlushSession(sessionID)
	}

	// Receiving side of both bridge transports
	renderRouter := service.NewRenderRouter(wsHub, deliveryService, deliveryLogger)
	bridgeListener := bridge.NewListener(rdb, renderRouter, deliveryLogger)

	// Embedded pipeline: deliver through the in-process watermill bus.
	localBus := bridge.NewLocalBus(cfg.Pipeline.LocalTopic)
	consumerService := service.NewConsumerService(localBus, renderRouter)

	contentCache := cache.NewContentCache(rdb, cfg.Cache.PlanTTL, cfg.Cache.ChunkTTL, sysLogger)
	pipelineService := newPipeline(cfg, sessionRepo, contentCache, jobPub, service.NewBridgeSink(localBus), sysLogger)

	lectureService := service.NewLectureService(cfg.Pipeline, sessionRepo, jobPub, sysLogger)
	lectureController := controller.NewLectureController(lectureService, contentCache)

	return &Container{
		LectureController: lectureController,
		ConsumerService:   consumerService,
		PipelineService:   pipelineService,
		DeliveryService:   deliveryService,
		BridgeListener:    bridgeListener,
		JobSubscriber:     jobSub,
		JobPublisher:      jobPub,
		LocalBus:          localBus,
		WebSocketHub:      wsHub,
		Logger:            sysLogger,
	}
}

// WorkerContainer wires a standalone generation worker: pipeline consumers
// only, delivering across the Redis event bridge.
type WorkerContainer struct {
	PipelineService service.IPipelineService
	JobSubscriber   *jobs.Subscriber
	JobPublisher    *jobs.Publisher
	Logger          logger.ILogger
}

func NewWorkerContainer(cfg *config.Config) *WorkerContainer {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	rdb := newRedisClient(cfg)

	jobPub, err := jobs.NewPublisher(cfg.App.NatsURL, cfg.Pipeline.StreamName,
		[]string{cfg.Pipeline.PlanSubject, cfg.Pipeline.GenerateSubject})
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect NATS publisher: %v", err)
	}
	jobSub, err := jobs.NewSubscriber(cfg.App.NatsURL, cfg.Pipeline.StreamName)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect NATS subscriber: %v", err)
	}

	sessionRepo := redisrepo.NewSessionRepository(rdb, cfg.Delivery.ParkTTL)
	contentCache := cache.NewContentCache(rdb, cfg.Cache.PlanTTL, cfg.Cache.ChunkTTL, sysLogger)

	// This process does not own connections: cross the Redis bridge.
	sink := service.NewBridgeSink(bridge.NewPublisher(rdb))
	pipelineService := newPipeline(cfg, sessionRepo, contentCache, jobPub, sink, sysLogger)

	return &WorkerContainer{
		PipelineService: pipelineService,
		JobSubscriber:   jobSub,
		JobPublisher:    jobPub,
		Logger:          sysLogger,
	}
}

func newRedisClient(cfg *config.Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	return rdb
}

func newPipeline(
	cfg *config.Config,
	sessionRepo *redisrepo.SessionRepository,
	contentCache *cache.ContentCache,
	jobPub *jobs.Publisher,
	sink service.DeliverySink,
	sysLogger logger.ILogger,
) service.IPipelineService {
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// One breaker per guarded dependency, owned here, never global.
	plannerBreaker := breaker.New("planner-llm", cfg.Ai.BreakerThreshold, cfg.Ai.BreakerReset)
	generatorBreaker := breaker.New("generator-llm", cfg.Ai.BreakerThreshold, cfg.Ai.BreakerReset)

	return service.NewPipelineService(
		cfg.Pipeline,
		jobPub,
		sessionRepo,
		contentCache,
		lecture.NewLLMPlanner(llmProvider, plannerBreaker),
		lecture.NewLLMGenerator(llmProvider, generatorBreaker),
		lecture.NewActionCompiler(),
		lecture.NewChunkPostProcessor(),
		sink,
		sysLogger,
	)
}
