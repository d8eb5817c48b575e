package rectree

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    addCounter    prometheus.Counter
//	    listHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAdd(duration time.Duration, err error) {
//	    p.addCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordAdd is called after each insert, err is nil if successful.
	RecordAdd(duration time.Duration, err error)

	// RecordDelete is called after each delete; count is the number of
	// records removed (more than one for range and namespace deletes).
	RecordDelete(count int, duration time.Duration, err error)

	// RecordGetList is called after each range extraction.
	RecordGetList(records int, bytes int64, duration time.Duration, err error)

	// RecordSave is called when a save (including any mirror upload) completes.
	RecordSave(duration time.Duration, err error)

	// RecordLoad is called after each load with the number of records loaded.
	RecordLoad(records int, duration time.Duration, err error)

	// RecordRepair is called after each repair with the number of records dropped.
	RecordRepair(dropped int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordGetList(int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordSave(time.Duration, error)                {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordRepair(int, time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount        atomic.Int64
	AddErrors       atomic.Int64
	AddTotalNanos   atomic.Int64
	DeleteCount     atomic.Int64
	DeletedRecords  atomic.Int64
	DeleteErrors    atomic.Int64
	GetListCount    atomic.Int64
	GetListRecords  atomic.Int64
	GetListBytes    atomic.Int64
	GetListErrors   atomic.Int64
	GetListNanos    atomic.Int64
	SaveCount       atomic.Int64
	SaveErrors      atomic.Int64
	SaveTotalNanos  atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadedRecords   atomic.Int64
	RepairCount     atomic.Int64
	RepairErrors    atomic.Int64
	RepairedDropped atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(count int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeletedRecords.Add(int64(count))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordGetList implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetList(records int, bytes int64, duration time.Duration, err error) {
	b.GetListCount.Add(1)
	b.GetListRecords.Add(int64(records))
	b.GetListBytes.Add(bytes)
	b.GetListNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetListErrors.Add(1)
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(records int, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadedRecords.Add(int64(records))
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordRepair implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRepair(dropped int, _ time.Duration, err error) {
	b.RepairCount.Add(1)
	b.RepairedDropped.Add(int64(dropped))
	if err != nil {
		b.RepairErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:        b.AddCount.Load(),
		AddErrors:       b.AddErrors.Load(),
		AddAvgNanos:     avg(b.AddTotalNanos.Load(), b.AddCount.Load()),
		DeleteCount:     b.DeleteCount.Load(),
		DeletedRecords:  b.DeletedRecords.Load(),
		DeleteErrors:    b.DeleteErrors.Load(),
		GetListCount:    b.GetListCount.Load(),
		GetListRecords:  b.GetListRecords.Load(),
		GetListBytes:    b.GetListBytes.Load(),
		GetListErrors:   b.GetListErrors.Load(),
		GetListAvgNanos: avg(b.GetListNanos.Load(), b.GetListCount.Load()),
		SaveCount:       b.SaveCount.Load(),
		SaveErrors:      b.SaveErrors.Load(),
		SaveAvgNanos:    avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadedRecords:   b.LoadedRecords.Load(),
		RepairCount:     b.RepairCount.Load(),
		RepairErrors:    b.RepairErrors.Load(),
		RepairedDropped: b.RepairedDropped.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount        int64
	AddErrors       int64
	AddAvgNanos     int64
	DeleteCount     int64
	DeletedRecords  int64
	DeleteErrors    int64
	GetListCount    int64
	GetListRecords  int64
	GetListBytes    int64
	GetListErrors   int64
	GetListAvgNanos int64
	SaveCount       int64
	SaveErrors      int64
	SaveAvgNanos    int64
	LoadCount       int64
	LoadErrors      int64
	LoadedRecords   int64
	RepairCount     int64
	RepairErrors    int64
	RepairedDropped int64
}
