package main

import (
	"context"
	"time"

	"curator/internal/batch"
	"curator/internal/conflict"
	"curator/internal/drag"
	"curator/internal/handlers"
	"curator/internal/poller"
	"curator/internal/publish"
	"curator/internal/selection"
	"curator/internal/store"
	"curator/internal/websocket"
	"curator/pkg/clients"
	publisherclient "curator/pkg/clients/publisher"
	"curator/pkg/config"
	"curator/pkg/logging"
	"curator/pkg/models"
	"curator/pkg/monitoring"
	"curator/pkg/server"
	"curator/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("curator")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Curator (Approval & Scheduling API)")

	publisherURL := config.RequireEnv("PUBLISHER_API_URL")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Publisher API client. Reads retry with backoff behind a shared
	// circuit breaker; mutations are issued exactly once.
	cbConfig := clients.DefaultCircuitBreakerConfig()
	publisherClient := publisherclient.NewClient(publisherclient.Config{
		BaseURL:              publisherURL,
		ServiceToken:         serviceToken,
		Timeout:              config.GetEnvDuration("PUBLISHER_TIMEOUT", 30*time.Second),
		Logger:               logger,
		CircuitBreakerConfig: &cbConfig,
	})

	// Stores hold the single local copy of the publisher's state
	scheduleStore := store.NewScheduleStore()
	queueStore := store.NewQueueStore()
	selectionStore := selection.NewStore()

	// Selection may only reference items still in the queue
	queueStore.SetOnChange(func(items []models.ApprovalQueueItem) {
		selectionStore.Reconcile(items)
	})

	detector := conflict.NewDetector(
		config.GetEnvInt("CONFLICT_WARNING_THRESHOLD", conflict.DefaultWarningThreshold),
		config.GetEnvInt("CONFLICT_CRITICAL_THRESHOLD", conflict.DefaultCriticalThreshold),
	)

	// WebSocket hub fans batch, calendar and publish events out to dashboards
	hub := websocket.NewHub(logger)
	go hub.Run()

	tracker := publish.NewTracker(scheduleStore, publisherClient, publish.Config{
		Interval:          config.GetEnvDuration("STATUS_TICK_INTERVAL", publish.DefaultInterval),
		ImminentThreshold: config.GetEnvDuration("IMMINENT_THRESHOLD", publish.DefaultImminentThreshold),
		LockedThreshold:   config.GetEnvDuration("LOCKED_THRESHOLD", publish.DefaultLockedThreshold),
		Logger:            logger,
	})
	tracker.SetOnTick(hub.PublishStatus)

	calendarPoller := poller.New(publisherClient, scheduleStore, queueStore, detector, tracker, poller.Config{
		Interval:   config.GetEnvDuration("POLL_INTERVAL", poller.DefaultInterval),
		LookBehind: config.GetEnvDuration("CALENDAR_LOOK_BEHIND", poller.DefaultLookBehind),
		LookAhead:  config.GetEnvDuration("CALENDAR_LOOK_AHEAD", poller.DefaultLookAhead),
		Events:     hub,
		Logger:     logger,
	})

	engine := batch.NewEngine(queueStore, publisherClient, batch.Config{
		Events: hub,
		Refresh: func(ctx context.Context) {
			if err := calendarPoller.RefreshNow(ctx); err != nil {
				logger.WithError(err).Warn("Post-batch refresh failed")
			}
		},
		Logger:            logger,
		ProgressThreshold: config.GetEnvInt("BATCH_PROGRESS_THRESHOLD", batch.DefaultProgressThreshold),
	})

	dragController := drag.NewController(scheduleStore, detector, tracker, publisherClient, drag.Config{
		LockWindow: config.GetEnvDuration("DRAG_LOCK_WINDOW", drag.DefaultLockWindow),
		Refresh: func(ctx context.Context) {
			if err := calendarPoller.RefreshNow(ctx); err != nil {
				logger.WithError(err).Warn("Post-reschedule refresh failed")
			}
		},
		Logger: logger,
	})

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("curator", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("curator", version.Version, version.GitCommit)

	healthChecker.AddCheck("publisher", monitoring.HTTPServiceHealthCheck("publisher", publisherURL+"/health"))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"PUBLISHER_API_URL": publisherURL,
		"SERVICE_TOKEN":     serviceToken,
	}))

	// Create custom curator metrics
	metrics := &handlers.CuratorMetrics{
		BatchOperations:   metricsCollector.NewCounter("batch_operations_total", "Batch mutations started", []string{"action"}),
		BatchItemResults:  metricsCollector.NewCounter("batch_item_results_total", "Per-item batch outcomes", []string{"action", "result"}),
		RescheduleOps:     metricsCollector.NewCounter("reschedule_operations_total", "Drag reschedule commits", []string{"result"}),
		RetryPublishOps:   metricsCollector.NewCounter("retry_publish_operations_total", "Publish retry requests", []string{"result"}),
		SelectionSize:     metricsCollector.NewGauge("selection_size", "Items currently selected", nil).WithLabelValues(),
		ConflictedBuckets: metricsCollector.NewGauge("conflicted_buckets", "Hour buckets holding more than one item", nil).WithLabelValues(),
	}

	// Initialize handlers
	handlers.Init(handlers.Deps{
		Logger:    logger,
		Metrics:   metrics,
		Schedule:  scheduleStore,
		Queue:     queueStore,
		Selection: selectionStore,
		Detector:  detector,
		Engine:    engine,
		Drag:      dragController,
		Tracker:   tracker,
		Poller:    calendarPoller,
		Hub:       hub,
	})

	// Background loops: canonical refresh and the publish-status tick
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go calendarPoller.Run(ctx)
	go tracker.Run(ctx)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "curator", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/curator/ prefix)
	{
		router.GET("/queue", handlers.GetQueue)

		router.GET("/selection", handlers.GetSelection)
		router.POST("/selection/toggle", handlers.ToggleSelection)
		router.POST("/selection/select-all", handlers.SelectAll)
		router.POST("/selection/clear", handlers.ClearSelection)
		router.POST("/selection/toggle-all", handlers.ToggleSelectAll)
		router.POST("/selection/filter", handlers.SelectByFilter)

		router.POST("/batch/approve", handlers.BatchApprove)
		router.POST("/batch/reject", handlers.BatchReject)
		router.POST("/batch/retry-failed", handlers.RetryFailedBatch)
		router.GET("/batch/failed", handlers.GetFailedItems)

		router.GET("/calendar", handlers.GetCalendar)
		router.POST("/calendar/refresh", handlers.RefreshCalendar)
		router.GET("/calendar/preview", handlers.PreviewConflict)

		router.GET("/drag", handlers.GetDragState)
		router.POST("/drag/start", handlers.StartDrag)
		router.POST("/drag/hover", handlers.HoverDrag)
		router.POST("/drag/drop", handlers.DropDrag)
		router.POST("/drag/cancel", handlers.CancelDrag)
		router.POST("/drag/clear-error", handlers.ClearDragError)

		router.GET("/publish-status", handlers.GetPublishStatus)
		router.POST("/schedule/:id/retry-publish", handlers.RetryPublish)

		router.GET("/ws", handlers.ServeWS)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("curator", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
