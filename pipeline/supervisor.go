package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
)

// Pipeline owns the long running components and their shutdown ordering. On cancellation
// the detection workers stop first, the aggregator flushes its open windows into the
// batch queue, and only then are the analysis workers cancelled; their drain-on-cancel
// loop scores the flushed batches before exiting. Members accumulated at shutdown thus
// still come out as scored (or fallback) assessments instead of vanishing.
type Pipeline struct {
	detection   *DetectionStage
	analysis    *AnalysisStage
	agg         *aggregator.Aggregator
	distributor *broadcaster.Distributor
	updater     GaugeUpdater
}

// NewPipeline wires the supervisor over its components
func NewPipeline(detection *DetectionStage, analysis *AnalysisStage, agg *aggregator.Aggregator, distributor *broadcaster.Distributor, updater GaugeUpdater) *Pipeline {
	if detection == nil || analysis == nil || agg == nil || distributor == nil || updater == nil {
		panic("parameters null")
	}
	return &Pipeline{
		detection:   detection,
		analysis:    analysis,
		agg:         agg,
		distributor: distributor,
		updater:     updater,
	}
}

// Run starts every component and blocks until ctx is cancelled and shutdown completes
func (p *Pipeline) Run(ctx context.Context) error {
	p.agg.Start()
	p.distributor.Start(ctx)
	p.updater.Start()

	// analysis gets its own lifetime so it can outlive ctx and drain the flush
	analysisCtx, cancelAnalysis := context.WithCancel(context.Background())
	analysisGroup := new(errgroup.Group)
	analysisGroup.Go(func() error {
		return p.analysis.Run(analysisCtx)
	})

	detectionGroup, detectionCtx := errgroup.WithContext(ctx)
	detectionGroup.Go(func() error {
		return p.detection.Run(detectionCtx)
	})
	err := detectionGroup.Wait()

	log.Info().Msg("detection stage stopped; flushing open batches")
	p.agg.Stop()
	cancelAnalysis()
	analysisGroup.Wait()

	p.updater.Stop()
	p.distributor.Stop()
	return err
}
