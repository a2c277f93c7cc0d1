package fabric

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeadLetterRecord describes a single delivery that is being routed to the
// dead-letter queue.
type DeadLetterRecord struct {
	Topic      string
	Handler    string
	EventType  string
	RetryCount int
	Category   ErrorCategory
	// Age is the time since the first delivery attempt, when known.
	Age time.Duration
}

// DeadLetterMetrics tracks dead-letter queue statistics, both as Prometheus
// collectors and as an in-process snapshot for admin endpoints.
type DeadLetterMetrics struct {
	mu sync.RWMutex

	topics map[string]*DeadLetterTopicStats

	messagesTotal  *prometheus.CounterVec
	depthGauge     *prometheus.GaugeVec
	replayedTotal  *prometheus.CounterVec
	purgedTotal    *prometheus.CounterVec
	ageSecondsHist *prometheus.HistogramVec
	retryCountHist *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// DeadLetterTopicStats holds per-topic dead-letter counters.
type DeadLetterTopicStats struct {
	Received      uint64            `json:"received"`
	Depth         uint64            `json:"depth"`
	Replayed      uint64            `json:"replayed"`
	Purged        uint64            `json:"purged"`
	ByCategory    map[string]uint64 `json:"by_category,omitempty"`
	OldestAt      time.Time         `json:"oldest_at,omitempty"`
	NewestAt      time.Time         `json:"newest_at,omitempty"`
	AvgRetryCount float64           `json:"avg_retry_count"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

// DeadLetterSnapshot is a point-in-time view across all topics.
type DeadLetterSnapshot struct {
	TotalDepth    uint64                           `json:"total_depth"`
	TotalReplayed uint64                           `json:"total_replayed"`
	TotalPurged   uint64                           `json:"total_purged"`
	Topics        map[string]*DeadLetterTopicStats `json:"topics"`
	CollectedAt   time.Time                        `json:"collected_at"`
}

func newDLQCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "dlq",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDLQGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fabric",
			Subsystem: "dlq",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDLQHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fabric",
			Subsystem: "dlq",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewDeadLetterMetrics creates a dead-letter metrics collector. A nil
// registerer falls back to the Prometheus default.
func NewDeadLetterMetrics(registerer prometheus.Registerer) *DeadLetterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &DeadLetterMetrics{
		topics:         make(map[string]*DeadLetterTopicStats),
		registerer:     registerer,
		messagesTotal:  newDLQCounterVec("messages_total", "Total number of messages routed to the dead letter queue", []string{"topic", "handler", "category"}),
		depthGauge:     newDLQGaugeVec("depth", "Current number of messages held in the dead letter queue", []string{"topic"}),
		replayedTotal:  newDLQCounterVec("replayed_total", "Total number of messages replayed from the dead letter queue", []string{"topic"}),
		purgedTotal:    newDLQCounterVec("purged_total", "Total number of messages purged from the dead letter queue", []string{"topic"}),
		ageSecondsHist: newDLQHistogramVec("message_age_seconds", "Age of messages when dead-lettered (time since first attempt)", []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600}, []string{"topic"}),
		retryCountHist: newDLQHistogramVec("retry_count", "Number of retries before the message was dead-lettered", []float64{1, 2, 3, 5, 10, 20}, []string{"topic"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *DeadLetterMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.depthGauge,
		m.replayedTotal,
		m.purgedTotal,
		m.ageSecondsHist,
		m.retryCountHist,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordDeadLetter records one delivery being routed to the dead-letter
// queue.
func (m *DeadLetterMetrics) RecordDeadLetter(rec DeadLetterRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateTopicStats(rec.Topic)
	stats.Received++
	stats.Depth++
	stats.LastUpdatedAt = time.Now()
	if stats.OldestAt.IsZero() {
		stats.OldestAt = time.Now()
	}
	stats.NewestAt = time.Now()
	if rec.Category != "" {
		stats.ByCategory[string(rec.Category)]++
	}

	total := stats.Received
	stats.AvgRetryCount = ((stats.AvgRetryCount * float64(total-1)) + float64(rec.RetryCount)) / float64(total)

	m.messagesTotal.WithLabelValues(rec.Topic, rec.Handler, string(rec.Category)).Inc()
	m.depthGauge.WithLabelValues(rec.Topic).Set(float64(stats.Depth))
	m.ageSecondsHist.WithLabelValues(rec.Topic).Observe(rec.Age.Seconds())
	m.retryCountHist.WithLabelValues(rec.Topic).Observe(float64(rec.RetryCount))
}

// RecordReplay records a message being replayed out of the dead-letter
// queue.
func (m *DeadLetterMetrics) RecordReplay(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateTopicStats(topic)
	stats.Replayed++
	if stats.Depth > 0 {
		stats.Depth--
	}
	stats.LastUpdatedAt = time.Now()

	m.replayedTotal.WithLabelValues(topic).Inc()
	m.depthGauge.WithLabelValues(topic).Set(float64(stats.Depth))
}

// RecordPurge records count messages being purged from the dead-letter
// queue.
func (m *DeadLetterMetrics) RecordPurge(topic string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateTopicStats(topic)
	stats.Purged += uint64(count)
	if stats.Depth >= uint64(count) {
		stats.Depth -= uint64(count)
	} else {
		stats.Depth = 0
	}
	stats.LastUpdatedAt = time.Now()

	m.purgedTotal.WithLabelValues(topic).Add(float64(count))
	m.depthGauge.WithLabelValues(topic).Set(float64(stats.Depth))
}

// SetDepth overrides the current depth for a topic, for syncing with the
// broker's own view of the queue.
func (m *DeadLetterMetrics) SetDepth(topic string, depth uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateTopicStats(topic)
	stats.Depth = depth
	stats.LastUpdatedAt = time.Now()

	m.depthGauge.WithLabelValues(topic).Set(float64(depth))
}

// Snapshot returns a point-in-time view of all dead-letter stats.
func (m *DeadLetterMetrics) Snapshot() DeadLetterSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := DeadLetterSnapshot{
		Topics:      make(map[string]*DeadLetterTopicStats),
		CollectedAt: time.Now(),
	}

	for topic, stats := range m.topics {
		snapshot.Topics[topic] = stats.clone()
		snapshot.TotalDepth += stats.Depth
		snapshot.TotalReplayed += stats.Replayed
		snapshot.TotalPurged += stats.Purged
	}

	return snapshot
}

// TopicStats returns a copy of the stats for one topic, or nil when the
// topic has never dead-lettered.
func (m *DeadLetterMetrics) TopicStats(topic string) *DeadLetterTopicStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, ok := m.topics[topic]; ok {
		return stats.clone()
	}
	return nil
}

func (s *DeadLetterTopicStats) clone() *DeadLetterTopicStats {
	clone := *s
	clone.ByCategory = make(map[string]uint64, len(s.ByCategory))
	for k, v := range s.ByCategory {
		clone.ByCategory[k] = v
	}
	return &clone
}

func (m *DeadLetterMetrics) getOrCreateTopicStats(topic string) *DeadLetterTopicStats {
	stats, ok := m.topics[topic]
	if !ok {
		stats = &DeadLetterTopicStats{ByCategory: make(map[string]uint64)}
		m.topics[topic] = stats
	}
	return stats
}

func parseRetryCount(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
