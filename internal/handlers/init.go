package handlers

import (
	"github.com/prometheus/client_golang/prometheus"

	"curator/pkg/logging"

	"curator/internal/batch"
	"curator/internal/conflict"
	"curator/internal/drag"
	"curator/internal/poller"
	"curator/internal/publish"
	"curator/internal/selection"
	"curator/internal/store"
	"curator/internal/websocket"
)

var (
	logger       logging.Logger
	metrics      *CuratorMetrics
	scheduleData *store.ScheduleStore
	queueData    *store.QueueStore
	selected     *selection.Store
	detector     *conflict.Detector
	engine       *batch.Engine
	dragCtrl     *drag.Controller
	tracker      *publish.Tracker
	refresher    *poller.Poller
	hub          *websocket.Hub
)

// CuratorMetrics holds all Prometheus metrics for the curator service
type CuratorMetrics struct {
	BatchOperations   *prometheus.CounterVec
	BatchItemResults  *prometheus.CounterVec
	RescheduleOps     *prometheus.CounterVec
	RetryPublishOps   *prometheus.CounterVec
	SelectionSize     prometheus.Gauge
	ConflictedBuckets prometheus.Gauge
}

// Deps carries everything the handlers need
type Deps struct {
	Logger    logging.Logger
	Metrics   *CuratorMetrics
	Schedule  *store.ScheduleStore
	Queue     *store.QueueStore
	Selection *selection.Store
	Detector  *conflict.Detector
	Engine    *batch.Engine
	Drag      *drag.Controller
	Tracker   *publish.Tracker
	Poller    *poller.Poller
	Hub       *websocket.Hub
}

// Init initializes the handlers with the engine components and logger
func Init(d Deps) {
	logger = d.Logger
	metrics = d.Metrics
	scheduleData = d.Schedule
	queueData = d.Queue
	selected = d.Selection
	detector = d.Detector
	engine = d.Engine
	dragCtrl = d.Drag
	tracker = d.Tracker
	refresher = d.Poller
	hub = d.Hub
}
