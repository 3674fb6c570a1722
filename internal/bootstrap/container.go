package bootstrap

import (
	"context"
	"log"

	"tracking-support-be/internal/config"
	"tracking-support-be/internal/controller"
	"tracking-support-be/internal/handler"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/pkg/mailer"
	"tracking-support-be/internal/repository/contract"
	"tracking-support-be/internal/repository/implementation"
	"tracking-support-be/internal/repository/memory"
	"tracking-support-be/internal/service"
	"tracking-support-be/internal/websocket"
	"tracking-support-be/pkg/llm/factory"
	pktNats "tracking-support-be/pkg/nats"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/dialogue"
	"tracking-support-be/pkg/support/lexicon"
	"tracking-support-be/pkg/support/strategy"
	"tracking-support-be/pkg/support/tracking"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SupportController controller.ISupportController
	ConsoleHandler    *handler.ConsoleHandler

	// Background Services (Exposed for main.go to run)
	EscalationConsumer service.IEscalationConsumer
	TurnAuditConsumer  service.ITurnAuditConsumer
	ConsoleFeed        *service.ConsoleFeedService // nil without NATS

	SupportService service.ISupportService
	WebSocketHub   *websocket.Hub

	closers []func()
}

// NewContainer wires the application. db may be nil, which disables the turn
// audit log; NATS and Redis are optional and only degrade fan-out when absent.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	escalationLogger := logger.NewIsolatedLogger(cfg.App.EscalationLogPath)

	// 2. Engine data
	kb, err := carrier.LoadFile(cfg.Engine.CarrierKBPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load carrier knowledge base: %v", err)
	}
	lx, err := lexicon.LoadFile(cfg.Engine.LexiconPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load lexicon: %v", err)
	}
	steps, err := strategy.LoadFile(cfg.Engine.StepsPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load step table: %v", err)
	}

	var lookup tracking.Lookup = tracking.Noop{}
	if cfg.Engine.TrackingAPIURL != "" {
		lookup = tracking.NewHTTPLookup(cfg.Engine.TrackingAPIURL, cfg.Engine.TrackingAPIKey, cfg.Engine.TrackingTimeout)
		log.Printf("[INFO] Using tracking API: %s", cfg.Engine.TrackingAPIURL)
	}

	sessionRepo := memory.NewSessionRepository(cfg.Engine.SessionTTL)

	// 3. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)

	c := &Container{}
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// NATS
	var events service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		events = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.closers = append(c.closers, natsSub.Close)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis, console fan-out is local only: %v", err)
		_ = rdb.Close()
		rdb = nil
	} else {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/console.log")
	wsHub := websocket.NewHub(rdb, wsLogger)

	// 4. Rendering
	llmProvider, err := factory.NewLLMProvider(llmSettings(cfg))
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	renderer := service.NewTemplateRenderer()
	if llmProvider != nil {
		renderer = service.NewLLMRenderer(llmProvider, cfg.Ai.RenderTimeout, sysLogger)
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	} else {
		log.Printf("[INFO] No LLM Provider configured, replying from templates")
	}

	// 5. Engine
	orchestrator := dialogue.NewOrchestrator(dialogue.Config{
		KnowledgeBase: kb,
		Lexicon:       lx,
		Steps:         steps,
		Sessions:      sessionRepo,
		Tracking:      lookup,
		Escalator:     service.NewEscalationPublisher(pubSub),
		Recorder:      service.NewTurnPublisher(pubSub),
		Logger:        sysLogger,
		LookupTimeout: cfg.Engine.TrackingTimeout,
	})

	// 6. Consumers
	var emailService mailer.IEmailService
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
		)
	}

	c.EscalationConsumer = service.NewEscalationConsumer(service.EscalationConsumerConfig{
		Subscriber: pubSub,
		Events:     events,
		Console:    wsHub,
		Mailer:     emailService,
		Inbox:      cfg.Engine.EscalationEmail,
		Sessions:   sessionRepo,
		ConsoleURL: cfg.App.BaseURL,
		Logger:     escalationLogger,
	})

	var turnLogs contract.TurnLogRepository
	if db != nil {
		turnLogs = implementation.NewTurnLogRepository(db)
	}
	c.TurnAuditConsumer = service.NewTurnAuditConsumer(pubSub, turnLogs, wsHub, sysLogger)

	if natsSub != nil {
		c.ConsoleFeed = service.NewConsoleFeedService(natsSub, wsHub, wsLogger)
	}

	// 7. Controllers
	c.SupportService = service.NewSupportService(orchestrator, sessionRepo, renderer, kb, events, sysLogger)
	c.SupportController = controller.NewSupportController(c.SupportService)
	c.ConsoleHandler = handler.NewConsoleHandler(service.NewTurnHistoryService(turnLogs), wsHub, wsLogger)
	c.WebSocketHub = wsHub

	return c
}

func llmSettings(cfg *config.Config) factory.Settings {
	s := factory.Settings{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.OllamaBaseURL,
	}
	if cfg.Ai.LLMProvider == "huggingface" {
		s.BaseURL = cfg.Ai.HuggingFaceURL
		s.APIKey = cfg.Ai.HuggingFaceKey
	}
	return s
}

// Start runs the hub and the background consumers until ctx ends
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.EscalationConsumer.Consume(ctx); err != nil {
		return err
	}
	if err := c.TurnAuditConsumer.Consume(ctx); err != nil {
		return err
	}
	if c.ConsoleFeed != nil {
		if err := c.ConsoleFeed.Start(ctx); err != nil {
			log.Printf("[WARN] Console feed not started: %v", err)
		}
	}
	return nil
}

// Close releases bus and cache connections in reverse order
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
