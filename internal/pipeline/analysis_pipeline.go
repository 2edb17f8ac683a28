package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"tracesig/internal/alerts"
	inputredis "tracesig/internal/input/redis"
	"tracesig/internal/logger"
	"tracesig/internal/metrics"
	"tracesig/internal/taskstate"
	"tracesig/pkg/models"
)

// RedisAnalysisPipeline consumes analysis tasks from Redis and writes
// reports.
type RedisAnalysisPipeline struct {
	consumer      *inputredis.Consumer
	analyzer      *Analyzer
	writer        ReportWriter
	scorer        *alerts.Scorer
	alertWriter   AlertWriter
	stateStore    *taskstate.RedisStore
	workers       int
	batchSize     int
	flushInterval time.Duration
}

type analysisWorkItem struct {
	report *models.Report
}

// NewRedisAnalysisPipeline creates a pipeline for Redis-driven analysis.
func NewRedisAnalysisPipeline(consumer *inputredis.Consumer, analyzer *Analyzer, writer ReportWriter, scorer *alerts.Scorer, alertWriter AlertWriter, stateStore *taskstate.RedisStore, workers, batchSize int, flushInterval time.Duration) *RedisAnalysisPipeline {
	return &RedisAnalysisPipeline{
		consumer:      consumer,
		analyzer:      analyzer,
		writer:        writer,
		scorer:        scorer,
		alertWriter:   alertWriter,
		stateStore:    stateStore,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop.
func (p *RedisAnalysisPipeline) Run(ctx context.Context) error {
	logger.Infof("Redis analysis pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.batchSize <= 0 {
		p.batchSize = 50
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)
	workCh := make(chan analysisWorkItem, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(msgCh, workCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx, workCh)
	}()

	<-ctx.Done()
	close(workCh)
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *RedisAnalysisPipeline) Close() error {
	if p.alertWriter != nil {
		if err := p.alertWriter.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.stateStore != nil {
		if err := p.stateStore.Close(); err != nil {
			logger.Errorf("Failed to close task-state store: %v", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close report writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *RedisAnalysisPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop redis message: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			continue
		}
		out <- payload
	}
}

func (p *RedisAnalysisPipeline) workerLoop(in <-chan []byte, out chan<- analysisWorkItem) {
	for payload := range in {
		var task models.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.Warnf("Failed to parse task payload: %v", err)
			metrics.TaskAnalyzed("invalid")
			continue
		}

		report, err := p.analyzer.AnalyzeTask(&task)
		if err != nil {
			if errors.Is(err, ErrNoTrace) {
				logger.Warnf("Task %s has no recognizable trace", task.TaskID)
				metrics.TaskAnalyzed("no_trace")
			} else {
				logger.Errorf("Failed to analyze task %s: %v", task.TaskID, err)
				metrics.TaskAnalyzed("error")
			}
			continue
		}

		metrics.TaskAnalyzed("ok")
		out <- analysisWorkItem{report: report}
	}
}

func (p *RedisAnalysisPipeline) writeLoop(ctx context.Context, in <-chan analysisWorkItem) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batchReports []*models.Report
	var batchAlerts []*models.Alert

	flush := func() {
		if len(batchReports) > 0 {
			for {
				if err := p.writer.WriteReports(batchReports); err != nil {
					logger.Errorf("Failed to write reports: %v", err)
					select {
					case <-ctx.Done():
						return
					case <-time.After(1 * time.Second):
					}
					continue
				}
				batchReports = nil
				break
			}
		}
		if p.alertWriter != nil && len(batchAlerts) > 0 {
			for {
				if err := p.alertWriter.WriteAlerts(batchAlerts); err != nil {
					logger.Errorf("Failed to write alerts: %v", err)
					select {
					case <-ctx.Done():
						return
					case <-time.After(1 * time.Second):
					}
					continue
				}
				batchAlerts = nil
				break
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case item, ok := <-in:
			if !ok {
				flush()
				return
			}
			report := item.report
			batchReports = append(batchReports, report)
			if len(report.Signatures) > 0 {
				if p.stateStore != nil {
					if err := p.stateStore.WriteResults(report.TaskID, report.Signatures, report.GeneratedAt); err != nil {
						logger.Errorf("Failed to persist task state for %s: %v", report.TaskID, err)
					}
				}
				if p.scorer != nil {
					alertsOut := p.scorer.AddResults(report.TaskID, report.Signatures)
					if len(alertsOut) > 0 {
						for range alertsOut {
							metrics.AlertEmitted()
						}
						batchAlerts = append(batchAlerts, alertsOut...)
					}
				}
			}
			if len(batchReports) >= p.batchSize {
				flush()
			}
		}
	}
}
