package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/perimetric/sentinel-pipeline/storage/data"
)

// PseudoAssessmentRepository distinguishes the uncached repository in the wire graph
type PseudoAssessmentRepository AssessmentRepository

// CachedAssessmentRepository is a decorator for AssessmentRepository that caches reads by
// batch id. Dashboards poll recently closed batches aggressively; assessments never change
// once written so a short TTL is safe.
type CachedAssessmentRepository struct {
	delegate AssessmentRepository
	cache    *MemoryCache[string, *data.Assessment]
}

// NewCachedAssessmentRepository creates a new CachedAssessmentRepository
func NewCachedAssessmentRepository(delegate PseudoAssessmentRepository, ttl time.Duration) AssessmentRepository {
	return &CachedAssessmentRepository{
		delegate: delegate,
		cache:    NewMemoryCache[string, *data.Assessment](ttl),
	}
}

// Store delegates storing to the underlying repository
func (repo *CachedAssessmentRepository) Store(assessment *data.Assessment) (*data.Assessment, error) {
	return repo.delegate.Store(assessment)
}

// Get delegates to the underlying repository; only batch lookups are cached
func (repo *CachedAssessmentRepository) Get(assessmentID string) (*data.Assessment, error) {
	return repo.delegate.Get(assessmentID)
}

// GetByBatchID retrieves an assessment by its batch id, first checking the cache
func (repo *CachedAssessmentRepository) GetByBatchID(batchID string) (*data.Assessment, error) {
	if item, ok := repo.cache.Get(batchID); ok {
		return item, nil
	}
	assessment, err := repo.delegate.GetByBatchID(batchID)
	if err != nil {
		return assessment, err
	}
	repo.cache.Set(batchID, assessment)
	return assessment, nil
}

// GetList delegates to the underlying repository
func (repo *CachedAssessmentRepository) GetList(sourceID string, page *data.Pagination) ([]*data.Assessment, *data.Pagination, error) {
	return repo.delegate.GetList(sourceID, page)
}

// GetPrunable delegates to the underlying repository
func (repo *CachedAssessmentRepository) GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Assessment, error) {
	return repo.delegate.GetPrunable(cutoff, maxRecords)
}

// Prune delegates to the underlying repository; pruned assessments are past the cache TTL
func (repo *CachedAssessmentRepository) Prune(assessments []*data.Assessment) error {
	return repo.delegate.Prune(assessments)
}

// Close closes the underlying cache
func (repo *CachedAssessmentRepository) Close() {
	repo.cache.Close()
}

// AssessmentDBRepository assessment repository implementation for RDBMS
type AssessmentDBRepository struct {
	db *sql.DB
}

// NewAssessmentRepository retrieves new instance of assessment repository
func NewAssessmentRepository(db *sql.DB) PseudoAssessmentRepository {
	panicIfNoDBConnectionPool(db)
	return &AssessmentDBRepository{db: db}
}

const assessmentColumns = "id, batchId, sourceId, riskScore, riskLevel, summary, memberCount, fallback, createdAt, updatedAt"

// Store persists a new assessment; assessments are immutable once written
func (repo *AssessmentDBRepository) Store(assessment *data.Assessment) (*data.Assessment, error) {
	assessment.QuickFix()
	if !assessment.IsInValidState() {
		return assessment, ErrInvalidStateToSave
	}
	err := transactionalSingleRowWriteExec(repo.db, emptyOps,
		"INSERT INTO assessment ("+assessmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		args2SliceFnWrapper(assessment.ID, assessment.BatchID, assessment.SourceID, assessment.RiskScore, assessment.RiskLevel, assessment.Summary, assessment.MemberCount, assessment.Fallback, assessment.CreatedAt, assessment.UpdatedAt))
	if err != nil {
		err = normalizeDBError(err, detectionErrorMap)
	}
	return assessment, err
}

// Get retrieves the assessment with matching id
func (repo *AssessmentDBRepository) Get(assessmentID string) (*data.Assessment, error) {
	return repo.getSingle("SELECT "+assessmentColumns+" FROM assessment WHERE id like ?", assessmentID)
}

// GetByBatchID retrieves the assessment produced for the given batch
func (repo *AssessmentDBRepository) GetByBatchID(batchID string) (*data.Assessment, error) {
	return repo.getSingle("SELECT "+assessmentColumns+" FROM assessment WHERE batchId like ?", batchID)
}

func (repo *AssessmentDBRepository) getSingle(query string, arg string) (*data.Assessment, error) {
	assessment := &data.Assessment{}
	err := querySingleRow(repo.db, query, args2SliceFnWrapper(arg),
		args2SliceFnWrapper(&assessment.ID, &assessment.BatchID, &assessment.SourceID, &assessment.RiskScore, &assessment.RiskLevel, &assessment.Summary, &assessment.MemberCount, &assessment.Fallback, &assessment.CreatedAt, &assessment.UpdatedAt))
	return assessment, err
}

// GetList retrieves assessments of a source based on pagination params supplied. An empty
// source id lists across all sources. It will return an error if both after and before
// are present at the same time
func (repo *AssessmentDBRepository) GetList(sourceID string, page *data.Pagination) ([]*data.Assessment, *data.Pagination, error) {
	assessments := make([]*data.Assessment, 0)
	pagination := &data.Pagination{}
	if page == nil || (page.Next != nil && page.Previous != nil) {
		return assessments, pagination, ErrPaginationDeadlock
	}
	baseQuery := "SELECT " + assessmentColumns + " FROM assessment"
	queryArgs := make([]interface{}, 0, 3)
	if len(sourceID) > 0 {
		baseQuery = baseQuery + " WHERE sourceId like ?" + getPaginationQueryFragment(page, true)
		queryArgs = appendWithPaginationArgs(page, sourceID)
	} else {
		baseQuery = baseQuery + getPaginationQueryFragment(page, false)
		queryArgs = getPaginationTimestampQueryArgs(page)
	}
	scanArgs := func() []interface{} {
		assessment := &data.Assessment{}
		assessments = append(assessments, assessment)
		return []interface{}{&assessment.ID, &assessment.BatchID, &assessment.SourceID, &assessment.RiskScore, &assessment.RiskLevel, &assessment.Summary, &assessment.MemberCount, &assessment.Fallback, &assessment.CreatedAt, &assessment.UpdatedAt}
	}
	err := queryRows(repo.db, baseQuery, args2SliceFnWrapper(queryArgs...), scanArgs)
	if err == nil {
		assessmentCount := len(assessments)
		if assessmentCount > 0 {
			pagination = data.NewPagination(assessments[assessmentCount-1], assessments[0])
		}
	}
	return assessments, pagination, err
}

// GetPrunable retrieves assessments created before the cutoff, oldest first
func (repo *AssessmentDBRepository) GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Assessment, error) {
	assessments := make([]*data.Assessment, 0)
	scanArgs := func() []interface{} {
		assessment := &data.Assessment{}
		assessments = append(assessments, assessment)
		return []interface{}{&assessment.ID, &assessment.BatchID, &assessment.SourceID, &assessment.RiskScore, &assessment.RiskLevel, &assessment.Summary, &assessment.MemberCount, &assessment.Fallback, &assessment.CreatedAt, &assessment.UpdatedAt}
	}
	err := queryRows(repo.db, "SELECT "+assessmentColumns+" FROM assessment WHERE createdAt < ? ORDER BY createdAt ASC LIMIT ?",
		args2SliceFnWrapper(cutoff, maxRecords), scanArgs)
	return assessments, err
}

// Prune deletes the given assessments in a single transaction
func (repo *AssessmentDBRepository) Prune(assessments []*data.Assessment) error {
	if len(assessments) == 0 {
		return nil
	}
	placeholders := make([]string, len(assessments))
	args := make([]interface{}, len(assessments))
	for index, assessment := range assessments {
		placeholders[index] = "?"
		args[index] = assessment.ID
	}
	query := "DELETE FROM assessment WHERE id IN (" + strings.Join(placeholders, ", ") + ")"
	return transactionalOperations(repo.db, func(tx *sql.Tx) error {
		return inTransactionExec(tx, emptyOps, query, args2SliceFnWrapper(args...), int64(len(assessments)))
	})
}
