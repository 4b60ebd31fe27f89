package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/grassehh/pso-matchmaker-sub000/internal/api/handlers"
	"github.com/grassehh/pso-matchmaker-sub000/internal/api/middleware"
	"github.com/grassehh/pso-matchmaker-sub000/internal/config"
	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
	"github.com/grassehh/pso-matchmaker-sub000/internal/service"
	"github.com/grassehh/pso-matchmaker-sub000/internal/websocket"
	"github.com/grassehh/pso-matchmaker-sub000/internal/worker"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/distributed"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/logger"
)

// SetupRouter wires stores, services and background workers, and returns the
// engine plus a shutdown func that stops the workers in order.
func SetupRouter(cfg *config.Config, db *database.DB) (*gin.Engine, func()) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	log := logger.Desugared()

	// Stores. Without a database URL the in-memory store backs everything,
	// which is enough for local development and tests.
	var (
		queueStore     repository.QueueStore
		challengeStore repository.ChallengeStore
		matchStore     repository.MatchStore
		ratingStore    repository.RatingStore
		rosterStore    repository.RosterStore
	)
	if db != nil {
		queueStore = repository.NewQueueRepository(db)
		challengeStore = repository.NewChallengeRepository(db)
		matchStore = repository.NewMatchRepository(db)
		ratingStore = repository.NewRatingRepository(db)
		rosterStore = repository.NewRosterRepository(db)
	} else {
		logger.Warn("No database configured, using in-memory store")
		mem := repository.NewMemoryStore()
		queueStore = mem
		challengeStore = mem
		matchStore = mem
		ratingStore = mem
		rosterStore = mem
	}

	// Redis enables multi-instance coordination; everything degrades to
	// single-instance behavior without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("Invalid REDIS_URL, distributed coordination disabled", "error", err)
		} else {
			redisClient = redis.NewClient(opts)
		}
	}

	// WebSocket hub doubles as the in-process notification gateway.
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	gateways := notify.Multi{wsHub}
	var natsGateway *notify.NATSGateway
	if cfg.NATSURL != "" {
		var err error
		natsGateway, err = notify.NewNATSGateway(cfg.NATSURL, cfg.NATSSubjectPrefix, log)
		if err != nil {
			logger.Warn("NATS unavailable, JetStream notifications disabled", "error", err)
		} else {
			gateways = append(gateways, natsGateway)
		}
	}
	var gateway notify.Gateway = gateways

	// Services.
	ratingService := service.NewRatingService(ratingStore, rosterStore, log)
	finalizerService := service.NewFinalizerService(queueStore, challengeStore, matchStore, rosterStore, ratingStore, gateway, log)

	votingService := service.NewVotingService(matchStore, ratingService, gateway, nil, log)

	var (
		passCoordinator  *distributed.PassCoordinator
		settlementWorker *worker.SettlementWorker
		localRetry       *worker.LocalRetry
		passLock         service.PassLock
		passTrigger      service.PassTrigger
	)
	if redisClient != nil {
		passCoordinator = distributed.NewPassCoordinator(redisClient, log)
		passLock = passCoordinator
		passTrigger = passCoordinator

		settlementQueue := distributed.NewRetryQueue(redisClient, "settlements", 5*time.Second)
		settlementWorker = worker.NewSettlementWorker(settlementQueue, votingService, cfg.SettlementInterval, log)
		votingService.SetRetryQueue(settlementWorker)
	} else {
		// Without redis, failed settlements are replayed from process memory
		// instead of being left to operator action.
		localRetry = worker.NewLocalRetry(votingService, 5*time.Second, log)
		votingService.SetRetryQueue(localRetry)
	}

	challengeService := service.NewChallengeService(queueStore, challengeStore, rosterStore, finalizerService, gateway, log)
	matchmakingService := service.NewMatchmakingService(queueStore, rosterStore, finalizerService, passLock, passTrigger, cfg.MatchmakingInterval, log)
	leaderboardService := service.NewLeaderboardService(ratingStore, rosterStore)

	// Background workers.
	matchmakingService.Start()
	if settlementWorker != nil {
		settlementWorker.Start()
	}
	if passCoordinator != nil {
		go func() {
			if err := passCoordinator.Start(context.Background(), matchmakingService.Nudge); err != nil {
				logger.Warn("Pass coordinator exited", "error", err)
			}
		}()
	}

	// Handlers.
	queueHandler := handlers.NewQueueHandler(matchmakingService)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	matchHandler := handlers.NewMatchHandler(votingService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		queue := v1.Group("/queue")
		queue.Use(middleware.Auth(cfg))
		{
			queue.POST("", queueHandler.EnterQueue)
			queue.DELETE("", queueHandler.LeaveQueue)
			queue.POST("/mix", queueHandler.StartMixMatch)
		}

		challenges := v1.Group("/challenges")
		challenges.Use(middleware.Auth(cfg))
		{
			challenges.POST("", middleware.ChallengeRateLimit(), challengeHandler.Propose)
			challenges.POST("/:id/decision", challengeHandler.Decide)
			challenges.DELETE("/:id", challengeHandler.Cancel)
			challenges.POST("/:id/prompt", challengeHandler.AttachPrompt)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.POST("/:id/votes", middleware.Auth(cfg), middleware.VoteRateLimit(), matchHandler.SubmitVote)
			matches.POST("/:id/subs", middleware.Auth(cfg), matchHandler.RequestSub)
		}

		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("/:region/players", leaderboardHandler.GetPlayers)
			leaderboard.GET("/:region/teams", leaderboardHandler.GetTeams)
		}
	}

	shutdown := func() {
		matchmakingService.Stop()
		if settlementWorker != nil {
			settlementWorker.Stop()
		}
		if localRetry != nil {
			localRetry.Stop()
		}
		if passCoordinator != nil {
			passCoordinator.Stop()
		}
		if natsGateway != nil {
			natsGateway.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	return router, shutdown
}
