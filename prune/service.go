package prune

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/storage"
)

const panicString = "parameters null"

const (
	detectionEntity  = "detection"
	assessmentEntity = "assessment"
)

// Service periodically archives detections and assessments older than the configured
// retention period to JSONL blob objects and deletes them from the database afterwards.
// Deletion happens only after the batch has been archived, so a failed pass never loses
// records; the next pass picks them up again.
type Service struct {
	detections  storage.DetectionRepository
	assessments storage.AssessmentRepository
	retention   config.RetentionConfig
	stopChan    chan struct{}
	wg          sync.WaitGroup
	metrics     *MetricsContainer
}

// NewService creates the retention service
func NewService(detections storage.DetectionRepository, assessments storage.AssessmentRepository, retention config.RetentionConfig) *Service {
	if detections == nil || assessments == nil || retention == nil {
		panic(panicString)
	}
	return &Service{
		detections:  detections,
		assessments: assessments,
		retention:   retention,
		stopChan:    make(chan struct{}),
		metrics:     NewMetricsContainer(),
	}
}

// Start begins the periodic prune loop; it is a no-op when retention is disabled
func (service *Service) Start() {
	if !service.retention.IsRetentionEnabled() {
		log.Info().Msg("retention disabled, not starting prune loop")
		return
	}
	service.wg.Add(1)
	go func() {
		defer service.wg.Done()
		ticker := time.NewTicker(service.retention.GetRetentionSweepInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				service.runOnce()
			case <-service.stopChan:
				return
			}
		}
	}()
}

// Stop halts the prune loop and waits for an in-flight pass to finish
func (service *Service) Stop() {
	close(service.stopChan)
	service.wg.Wait()
}

// runOnce performs a single prune pass over both entities
func (service *Service) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("recovered from panic in prune pass - %v", r)
			service.metrics.IncreasePruneErrorCount()
		}
	}()
	manager, err := initArchiveManager(service.retention)
	if err != nil {
		log.Error().Err(err).Msg("could not initialize archive manager")
		service.metrics.IncreasePruneErrorCount()
		return
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close archive manager")
		}
	}()
	cutoff := time.Now().Add(-service.retention.GetRetentionPeriod())
	service.pruneDetections(manager, cutoff)
	service.pruneAssessments(manager, cutoff)
}

func (service *Service) pruneDetections(manager *ArchiveWriteManager, cutoff time.Time) {
	batchSize := service.retention.GetRetentionBatchSize()
	for {
		detections, err := service.detections.GetPrunable(cutoff, batchSize)
		if err != nil {
			log.Error().Err(err).Msg("failed to load prunable detections")
			service.metrics.IncreasePruneErrorCount()
			return
		}
		if len(detections) == 0 {
			return
		}
		for _, detection := range detections {
			if archiveErr := archiveRecord(manager, detectionEntity, detection); archiveErr != nil {
				log.Error().Err(archiveErr).Msg("failed to archive detection")
				service.metrics.IncreasePruneErrorCount()
				return
			}
		}
		if pruneErr := service.detections.Prune(detections); pruneErr != nil {
			log.Error().Err(pruneErr).Msg("failed to prune detections")
			service.metrics.IncreasePruneErrorCount()
			return
		}
		service.metrics.AddArchivedRecords(detectionEntity, len(detections))
		if uint(len(detections)) < batchSize {
			return
		}
	}
}

func (service *Service) pruneAssessments(manager *ArchiveWriteManager, cutoff time.Time) {
	batchSize := service.retention.GetRetentionBatchSize()
	for {
		assessments, err := service.assessments.GetPrunable(cutoff, batchSize)
		if err != nil {
			log.Error().Err(err).Msg("failed to load prunable assessments")
			service.metrics.IncreasePruneErrorCount()
			return
		}
		if len(assessments) == 0 {
			return
		}
		for _, assessment := range assessments {
			if archiveErr := archiveRecord(manager, assessmentEntity, assessment); archiveErr != nil {
				log.Error().Err(archiveErr).Msg("failed to archive assessment")
				service.metrics.IncreasePruneErrorCount()
				return
			}
		}
		if pruneErr := service.assessments.Prune(assessments); pruneErr != nil {
			log.Error().Err(pruneErr).Msg("failed to prune assessments")
			service.metrics.IncreasePruneErrorCount()
			return
		}
		service.metrics.AddArchivedRecords(assessmentEntity, len(assessments))
		if uint(len(assessments)) < batchSize {
			return
		}
	}
}

var (
	openArchiveBucket = func(ctx context.Context, retention config.RetentionConfig) (Bucket, error) {
		dirURL := fmt.Sprintf("file://%s?no_tmp_dir=1", retention.GetArchiveExportPath())
		bucket, err := blob.OpenBucket(ctx, dirURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive bucket: %w", err)
		}
		return NewBlobBucket(bucket), nil
	}

	initArchiveManager = func(retention config.RetentionConfig) (*ArchiveWriteManager, error) {
		now := time.Now().UTC().Format("2006_01_02T15_04_05Z")
		objectName := fmt.Sprintf("%s_%s.jsonl", retention.GetArchiveNodeName(), now)
		bucket, err := openArchiveBucket(context.Background(), retention)
		if err != nil {
			return nil, err
		}
		return NewArchiveWriteManager(bucket, objectName, int64(retention.GetMaxArchiveFileSizeInMB())*1024*1024), nil
	}

	archiveRecord = func(manager *ArchiveWriteManager, entity string, record interface{}) error {
		archiveData := struct {
			Entity string      `json:"entity"`
			Record interface{} `json:"record"`
		}{Entity: entity, Record: record}
		jsonData, err := json.Marshal(archiveData)
		if err != nil {
			return fmt.Errorf("failed to marshal %s for archive: %w", entity, err)
		}
		_, err = manager.Write(context.Background(), string(jsonData)+"\n")
		return err
	}
)
