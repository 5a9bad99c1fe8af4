package controllers

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/perimetric/sentinel-pipeline/storage"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

const (
	batchIDPathParamKey = "batchId"
	detectionsPath      = "/source/:" + sourceIDPathParamKey + "/detections"
	assessmentsPath     = "/source/:" + sourceIDPathParamKey + "/assessments"
	batchAssessmentPath = "/batch/:" + batchIDPathParamKey + "/assessment"
)

// DetectionModel is the API view of a persisted detection
type DetectionModel struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"sourceId"`
	FrameID    string    `json:"frameId"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detectedAt"`
}

func newDetectionModel(detection *data.Detection) *DetectionModel {
	return &DetectionModel{
		ID:         detection.ID.String(),
		SourceID:   detection.SourceID,
		FrameID:    detection.FrameID,
		Label:      detection.Label,
		Confidence: detection.Confidence,
		DetectedAt: detection.DetectedAt,
	}
}

// DetectionListResult is the paginated detections listing
type DetectionListResult struct {
	Result []*DetectionModel
	Pages  map[string]string
}

// AssessmentModel is the API view of a persisted risk assessment
type AssessmentModel struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batchId"`
	SourceID    string    `json:"sourceId"`
	RiskScore   uint      `json:"riskScore"`
	RiskLevel   string    `json:"riskLevel"`
	Summary     string    `json:"summary"`
	MemberCount uint      `json:"memberCount"`
	Fallback    bool      `json:"fallback"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newAssessmentModel(assessment *data.Assessment) *AssessmentModel {
	return &AssessmentModel{
		ID:          assessment.ID.String(),
		BatchID:     assessment.BatchID,
		SourceID:    assessment.SourceID,
		RiskScore:   assessment.RiskScore,
		RiskLevel:   assessment.RiskLevel,
		Summary:     assessment.Summary,
		MemberCount: assessment.MemberCount,
		Fallback:    assessment.Fallback,
		CreatedAt:   assessment.CreatedAt,
	}
}

// AssessmentListResult is the paginated assessments listing
type AssessmentListResult struct {
	Result []*AssessmentModel
	Pages  map[string]string
}

// DetectionsController for handling `/source/:sourceId/detections` endpoint
type DetectionsController struct {
	DetectionRepo storage.DetectionRepository
}

// NewDetectionsController initialize new detections listing controller
func NewDetectionsController(detectionRepo storage.DetectionRepository) *DetectionsController {
	return &DetectionsController{DetectionRepo: detectionRepo}
}

// Get implements the /source/:sourceId/detections endpoint
func (controller *DetectionsController) Get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sourceID := findParam(params, sourceIDPathParamKey)
	detections, resultPagination, err := controller.DetectionRepo.GetList(sourceID, getPagination(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	detectionModels := make([]*DetectionModel, len(detections))
	for index, detection := range detections {
		detectionModels[index] = newDetectionModel(detection)
	}
	data := DetectionListResult{Result: detectionModels, Pages: getPaginationLinks(r, resultPagination)}
	writeJSON(w, data)
}

// GetPath returns the endpoint's path
func (controller *DetectionsController) GetPath() string {
	return detectionsPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (controller *DetectionsController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, detectionsPath, sourceIDPathParamKey)
}

// AssessmentsController for handling `/source/:sourceId/assessments` endpoint
type AssessmentsController struct {
	AssessmentRepo storage.AssessmentRepository
}

// NewAssessmentsController initialize new assessments listing controller
func NewAssessmentsController(assessmentRepo storage.AssessmentRepository) *AssessmentsController {
	return &AssessmentsController{AssessmentRepo: assessmentRepo}
}

// Get implements the /source/:sourceId/assessments endpoint
func (controller *AssessmentsController) Get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sourceID := findParam(params, sourceIDPathParamKey)
	assessments, resultPagination, err := controller.AssessmentRepo.GetList(sourceID, getPagination(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	assessmentModels := make([]*AssessmentModel, len(assessments))
	for index, assessment := range assessments {
		assessmentModels[index] = newAssessmentModel(assessment)
	}
	data := AssessmentListResult{Result: assessmentModels, Pages: getPaginationLinks(r, resultPagination)}
	writeJSON(w, data)
}

// GetPath returns the endpoint's path
func (controller *AssessmentsController) GetPath() string {
	return assessmentsPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (controller *AssessmentsController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, assessmentsPath, sourceIDPathParamKey)
}

// BatchAssessmentController for handling `/batch/:batchId/assessment` endpoint
type BatchAssessmentController struct {
	AssessmentRepo storage.AssessmentRepository
}

// NewBatchAssessmentController initialize new batch assessment controller
func NewBatchAssessmentController(assessmentRepo storage.AssessmentRepository) *BatchAssessmentController {
	return &BatchAssessmentController{AssessmentRepo: assessmentRepo}
}

// Get implements the /batch/:batchId/assessment endpoint
func (controller *BatchAssessmentController) Get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	batchID := findParam(params, batchIDPathParamKey)
	assessment, err := controller.AssessmentRepo.GetByBatchID(batchID)
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, newAssessmentModel(assessment))
}

// GetPath returns the endpoint's path
func (controller *BatchAssessmentController) GetPath() string {
	return batchAssessmentPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (controller *BatchAssessmentController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, batchAssessmentPath, batchIDPathParamKey)
}
