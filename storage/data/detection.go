package data

import "time"

// Detection is the persisted outcome of running the detection stage on one ingested frame
type Detection struct {
	BasePaginateable
	SourceID   string
	FrameID    string
	Label      string
	Confidence float64
	DetectedAt time.Time
}

// QuickFix fixes the model to set default ID, timestamps and detection time
func (detection *Detection) QuickFix() bool {
	madeChanges := detection.BasePaginateable.QuickFix()
	if detection.DetectedAt.IsZero() {
		detection.DetectedAt = time.Now()
		madeChanges = true
	}
	return madeChanges
}

// IsInValidState returns false if source, frame or label is missing or confidence is out of [0, 1]
func (detection *Detection) IsInValidState() bool {
	if len(detection.SourceID) <= 0 || len(detection.FrameID) <= 0 || len(detection.Label) <= 0 {
		return false
	}
	if detection.Confidence < 0 || detection.Confidence > 1 {
		return false
	}
	return true
}

// NewDetection creates a new Detection for a frame of the given source
func NewDetection(sourceID string, frameID string, label string, confidence float64) (*Detection, error) {
	if len(sourceID) <= 0 || len(frameID) <= 0 || len(label) <= 0 {
		return nil, ErrInsufficientInformationForCreating
	}
	detection := &Detection{SourceID: sourceID, FrameID: frameID, Label: label, Confidence: confidence}
	detection.QuickFix()
	return detection, nil
}
