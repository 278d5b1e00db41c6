package metrics

type Collector interface {
	RecordCheck(decision string, duration float64)
	RecordDenial(reason string)
	RecordStoreFailure(op string)
	SetStoreUp(up bool)
}

type DefaultCollector struct{}

func NewCollector() Collector {
	return &DefaultCollector{}
}

func (m *DefaultCollector) RecordCheck(decision string, duration float64) {
	checksTotal.WithLabelValues(decision).Inc()
	checkDuration.WithLabelValues(decision).Observe(duration)
}

func (m *DefaultCollector) RecordDenial(reason string) {
	denialsTotal.WithLabelValues(reason).Inc()
}

func (m *DefaultCollector) RecordStoreFailure(op string) {
	storeFailuresTotal.WithLabelValues(op).Inc()
}

func (m *DefaultCollector) SetStoreUp(up bool) {
	if up {
		storeUp.Set(1)
	} else {
		storeUp.Set(0)
	}
}

// NoopCollector discards all observations. Used when metrics are disabled
// and in tests.
type NoopCollector struct{}

func NewNoopCollector() Collector { return &NoopCollector{} }

func (NoopCollector) RecordCheck(string, float64) {}
func (NoopCollector) RecordDenial(string)         {}
func (NoopCollector) RecordStoreFailure(string)   {}
func (NoopCollector) SetStoreUp(bool)             {}
