package data

const (
	// MaxRiskScore is the upper bound of the normalized risk score scale
	MaxRiskScore uint = 100
	// FallbackRiskScore is assigned when the analysis backend is unavailable
	FallbackRiskScore uint = 50
	// FallbackRiskLevel is assigned when the analysis backend is unavailable
	FallbackRiskLevel = "medium"
)

// Assessment is the persisted risk verdict for one closed batch of detections
type Assessment struct {
	BasePaginateable
	BatchID     string
	SourceID    string
	RiskScore   uint
	RiskLevel   string
	Summary     string
	MemberCount uint
	Fallback    bool
}

// QuickFix fixes the model to set default ID and timestamps
func (assessment *Assessment) QuickFix() bool {
	return assessment.BasePaginateable.QuickFix()
}

// IsInValidState returns false if batch, source or level is missing or the score exceeds the scale
func (assessment *Assessment) IsInValidState() bool {
	if len(assessment.BatchID) <= 0 || len(assessment.SourceID) <= 0 || len(assessment.RiskLevel) <= 0 {
		return false
	}
	if assessment.RiskScore > MaxRiskScore {
		return false
	}
	return true
}

// NewAssessment creates a new Assessment for a closed batch
func NewAssessment(batchID string, sourceID string, riskScore uint, riskLevel string) (*Assessment, error) {
	if len(batchID) <= 0 || len(sourceID) <= 0 || len(riskLevel) <= 0 {
		return nil, ErrInsufficientInformationForCreating
	}
	assessment := &Assessment{BatchID: batchID, SourceID: sourceID, RiskScore: riskScore, RiskLevel: riskLevel}
	assessment.QuickFix()
	return assessment, nil
}

// NewFallbackAssessment creates the neutral verdict emitted when analysis is unavailable
func NewFallbackAssessment(batchID string, sourceID string, memberCount uint) (*Assessment, error) {
	assessment, err := NewAssessment(batchID, sourceID, FallbackRiskScore, FallbackRiskLevel)
	if err != nil {
		return nil, err
	}
	assessment.MemberCount = memberCount
	assessment.Summary = "analysis unavailable; neutral fallback verdict"
	assessment.Fallback = true
	return assessment, nil
}
