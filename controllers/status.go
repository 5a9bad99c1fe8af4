package controllers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/perimetric/sentinel-pipeline/breaker"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/queue"
)

const (
	statusPath = "/_status"
	healthPath = "/health"
)

// AppData to deserialize in status endpoint
type AppData struct {
	Version             string  `json:"version"`
	DBDialect           string  `json:"dbDialect"`
	ListeningAddr       string  `json:"listeningAddr"`
	DetectionWorkers    uint    `json:"detectionWorkers"`
	AnalysisWorkers     uint    `json:"analysisWorkers"`
	FastPathThreshold   float64 `json:"fastPathThreshold"`
	FrameQueueCapacity  uint    `json:"frameQueueCapacity"`
	FrameOverflowPolicy string  `json:"frameOverflowPolicy"`
	BatchQueueCapacity  uint    `json:"batchQueueCapacity"`
	BatchOverflowPolicy string  `json:"batchOverflowPolicy"`
}

// NewStatusController Factory for new StatusController
func NewStatusController(appConfig *config.Config) *StatusController {
	statusController := &StatusController{appConfig: appConfig}
	return statusController
}

// StatusController is the controller for `/_status` endpoint
type StatusController struct {
	appConfig *config.Config
}

// GetPath returns the endpoint path
func (cont *StatusController) GetPath() string {
	return statusPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (cont *StatusController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return statusPath
}

// Get is the GET /_status endpoint controller
func (cont *StatusController) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	appData := AppData{
		Version:             string(config.GetVersion()),
		DBDialect:           string(cont.appConfig.GetDBDialect()),
		ListeningAddr:       cont.appConfig.GetHTTPListeningAddr(),
		DetectionWorkers:    cont.appConfig.GetDetectionWorkerCount(),
		AnalysisWorkers:     cont.appConfig.GetAnalysisWorkerCount(),
		FastPathThreshold:   cont.appConfig.GetFastPathConfidenceThreshold(),
		FrameQueueCapacity:  cont.appConfig.GetFrameQueueCapacity(),
		FrameOverflowPolicy: cont.appConfig.GetFrameQueueOverflowPolicy(),
		BatchQueueCapacity:  cont.appConfig.GetBatchQueueCapacity(),
		BatchOverflowPolicy: cont.appConfig.GetBatchQueueOverflowPolicy(),
	}
	writeJSON(w, appData)
}

// QueueHealthModel reports one bounded queue's pressure
type QueueHealthModel struct {
	Depth           int     `json:"depth"`
	Capacity        int     `json:"capacity"`
	FillRatio       float64 `json:"fillRatio"`
	DeadLetterCount int     `json:"deadLetterCount"`
}

// HealthModel is the response of the health endpoint
type HealthModel struct {
	Queues            map[string]*QueueHealthModel `json:"queues"`
	Breakers          []breaker.Snapshot           `json:"breakers"`
	OpenBatches       int                          `json:"openBatches"`
	Subscribers       int                          `json:"subscribers"`
	BroadcastDegraded bool                         `json:"broadcastDegraded"`
}

// HealthController is the controller for the `/health` endpoint
type HealthController struct {
	frames      *pipeline.FrameQueue
	batches     *pipeline.BatchQueue
	store       queue.DeadLetterStore
	breakers    *breaker.Registry
	agg         pipeline.OpenBatchCounter
	hub         *broadcaster.Hub
	distributor *broadcaster.Distributor
}

// NewHealthController Factory for new HealthController
func NewHealthController(frames *pipeline.FrameQueue, batches *pipeline.BatchQueue, store queue.DeadLetterStore, breakers *breaker.Registry, agg pipeline.OpenBatchCounter, hub *broadcaster.Hub, distributor *broadcaster.Distributor) *HealthController {
	return &HealthController{
		frames:      frames,
		batches:     batches,
		store:       store,
		breakers:    breakers,
		agg:         agg,
		hub:         hub,
		distributor: distributor,
	}
}

// GetPath returns the endpoint path
func (cont *HealthController) GetPath() string {
	return healthPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (cont *HealthController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return healthPath
}

// Get is the GET /health endpoint controller
func (cont *HealthController) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	queues := make(map[string]*QueueHealthModel)
	frameCount, err := cont.store.Count(cont.frames.Name())
	if err != nil {
		writeErr(w, err)
		return
	}
	queues[cont.frames.Name()] = &QueueHealthModel{
		Depth:           cont.frames.Len(),
		Capacity:        cont.frames.Cap(),
		FillRatio:       cont.frames.FillRatio(),
		DeadLetterCount: frameCount,
	}
	batchCount, err := cont.store.Count(cont.batches.Name())
	if err != nil {
		writeErr(w, err)
		return
	}
	queues[cont.batches.Name()] = &QueueHealthModel{
		Depth:           cont.batches.Len(),
		Capacity:        cont.batches.Cap(),
		FillRatio:       cont.batches.FillRatio(),
		DeadLetterCount: batchCount,
	}
	writeJSON(w, &HealthModel{
		Queues:            queues,
		Breakers:          cont.breakers.Snapshots(),
		OpenBatches:       cont.agg.OpenBatchCount(),
		Subscribers:       cont.hub.SubscriberCount(),
		BroadcastDegraded: cont.distributor.IsDegraded(),
	})
}
