package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/hlog"

	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/queue"
)

const (
	sourceIDPathParamKey = "sourceId"
	ingestPath           = "/ingest/:" + sourceIDPathParamKey

	// maxFramePayloadSize caps a single frame submission at 4 MiB
	maxFramePayloadSize = 4 << 20
)

// IngestAcceptedModel is the response of an accepted frame submission
type IngestAcceptedModel struct {
	FrameID  string `json:"frameId"`
	SourceID string `json:"sourceId"`
	Evicted  bool   `json:"evicted"`
}

// IngestController accepts camera frames into the bounded ingest queue. Backpressure is
// explicit: under the reject policy a full queue answers 429 and the camera client owns
// the retry.
type IngestController struct {
	frames *pipeline.FrameQueue
}

// NewIngestController Factory for new IngestController
func NewIngestController(frames *pipeline.FrameQueue) *IngestController {
	return &IngestController{frames: frames}
}

// GetPath returns the endpoint path
func (cont *IngestController) GetPath() string {
	return ingestPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (cont *IngestController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, ingestPath, sourceIDPathParamKey)
}

// Post is the POST /ingest/:sourceId endpoint controller
func (cont *IngestController) Post(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	logger := hlog.FromRequest(r)
	contentType := r.Header.Get(headerContentType)
	if !strings.Contains(contentType, jsonContentTypeHeaderValue) {
		writeUnsupportedMediaType(w)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxFramePayloadSize))
	if err != nil || len(payload) == 0 {
		writeBadRequest(w)
		return
	}
	sourceID := params.ByName(sourceIDPathParamKey)
	job := pipeline.NewFrameJob(sourceID, payload)
	result, err := cont.frames.Enqueue(job)
	switch result {
	case queue.Rejected:
		if err != nil && err != queue.ErrQueueFull {
			logger.Error().Err(err).Str("sourceId", sourceID).Msg("frame enqueue failed")
			writeErr(w, err)
			return
		}
		writeTooManyRequests(w)
	case queue.AcceptedAfterEviction, queue.AcceptedAfterDrop:
		writeJSONWithStatus(w, http.StatusAccepted, &IngestAcceptedModel{FrameID: job.FrameID, SourceID: sourceID, Evicted: true})
	default:
		writeJSONWithStatus(w, http.StatusAccepted, &IngestAcceptedModel{FrameID: job.FrameID, SourceID: sourceID})
	}
}
