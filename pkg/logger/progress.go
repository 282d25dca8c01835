package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs the progress of one long-running operation at a
// bounded rate
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	now         func() time.Time
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// NewProgressTracker creates a tracker and logs the start of the operation
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	start := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   start,
		lastLogTime: start,
		logInterval: config.LogInterval,
		now:         time.Now,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting operation")

	return tracker
}

// Update sets the processed counter, logging when the interval has elapsed
func (p *ProgressTracker) Update(current int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current = current
	if now := p.now(); now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fields(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics for the operation
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(p.fields(p.now())).Info("Operation completed")
}

// Stats returns a snapshot of the tracker
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := p.now().Sub(p.startTime)
	stats := ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Current:   p.current,
		Duration:  duration,
	}
	if duration > 0 {
		stats.Rate = float64(p.current) / duration.Seconds()
	}
	if p.total > 0 {
		stats.Percentage = float64(p.current) / float64(p.total) * 100
	}
	return stats
}

func (p *ProgressTracker) fields(now time.Time) Fields {
	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"elapsed":   now.Sub(p.startTime).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	return fields
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%) at %.2f/sec",
			ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Rate)
	}
	return fmt.Sprintf("%s: %d processed at %.2f/sec, elapsed: %v",
		ps.Operation, ps.Current, ps.Rate, ps.Duration)
}

// StageProgressLogger turns stage progress callbacks into log lines, keeping
// one ProgressTracker per stage. Safe for concurrent use; stages may report
// from different goroutines.
type StageProgressLogger struct {
	logger   Logger
	interval time.Duration
	mu       sync.Mutex
	trackers map[string]*ProgressTracker
}

// NewStageProgressLogger creates a progress logger. A zero interval uses the
// tracker default.
func NewStageProgressLogger(logger Logger, interval time.Duration) *StageProgressLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &StageProgressLogger{
		logger:   logger,
		interval: interval,
		trackers: make(map[string]*ProgressTracker),
	}
}

// OnProgress records that processed of total items are done for stage
func (s *StageProgressLogger) OnProgress(stage string, processed, total int) {
	s.mu.Lock()
	tracker, ok := s.trackers[stage]
	if !ok {
		tracker = NewProgressTracker(ProgressConfig{
			Operation:   stage,
			Total:       int64(total),
			LogInterval: s.interval,
			Logger:      s.logger,
		})
		s.trackers[stage] = tracker
	}
	s.mu.Unlock()

	tracker.Update(int64(processed))
	if processed >= total {
		tracker.Complete()
	}
}

// Stats returns the latest statistics for stage
func (s *StageProgressLogger) Stats(stage string) (ProgressStats, bool) {
	s.mu.Lock()
	tracker, ok := s.trackers[stage]
	s.mu.Unlock()
	if !ok {
		return ProgressStats{}, false
	}
	return tracker.Stats(), true
}

// OperationLogger provides structured logging for operations with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates an operation logger and logs the start
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger,
		operation: operation,
		fields:    Fields{"operation": operation},
		startTime: time.Now(),
	}

	ol.logger.WithFields(ol.fields).Debug("Starting operation")
	return ol
}

// WithField adds a field to every subsequent entry of the operation
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string, extra Fields) {
	ol.logger.WithFields(ol.merge(Fields{"step": step}, extra)).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, extra Fields) {
	ol.logger.WithFields(ol.merge(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}, extra)).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.merge(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}, nil)).Error(message)
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string) {
	ol.logger.WithFields(ol.merge(nil, nil)).Warn(message)
}

func (ol *OperationLogger) merge(sets ...Fields) Fields {
	fields := make(Fields, len(ol.fields))
	for k, v := range ol.fields {
		fields[k] = v
	}
	for _, set := range sets {
		for k, v := range set {
			fields[k] = v
		}
	}
	return fields
}
