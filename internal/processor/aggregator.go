package processor

import (
	"context"
	"sync"
	"time"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	defaultBucketDuration = time.Minute
	defaultFlushInterval  = 30 * time.Second
)

type bucketKey struct {
	monitorID string
	start     time.Time
}

type powerBucket struct {
	totalPower   float64
	readingCount int
	maxPower     float64
	minPower     float64
}

// powerAggregator rolls realtime power into fixed-width time buckets. A bucket
// is written once its window has closed, or on stop.
type powerAggregator struct {
	writer         BucketWriter
	buckets        map[bucketKey]*powerBucket
	mutex          sync.Mutex
	bucketDuration time.Duration
	flushInterval  time.Duration
	now            func() time.Time
	done           chan struct{}
	flushed        sync.WaitGroup
}

func newPowerAggregator(writer BucketWriter, bucketDuration, flushInterval time.Duration) *powerAggregator {
	a := newPowerAggregatorWithClock(writer, bucketDuration, time.Now)
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	a.flushInterval = flushInterval

	// Start periodic flusher
	a.flushed.Add(1)
	go a.periodicFlush()

	return a
}

func newPowerAggregatorWithClock(writer BucketWriter, bucketDuration time.Duration, now func() time.Time) *powerAggregator {
	if bucketDuration <= 0 {
		bucketDuration = defaultBucketDuration
	}
	return &powerAggregator{
		writer:         writer,
		buckets:        make(map[bucketKey]*powerBucket),
		bucketDuration: bucketDuration,
		now:            now,
		done:           make(chan struct{}),
	}
}

func (a *powerAggregator) update(monitorID string, snapshot models.RealtimeSnapshot) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	// Truncate timestamp to bucket duration
	key := bucketKey{monitorID: monitorID, start: snapshot.UpdatedAt.Truncate(a.bucketDuration)}
	power := snapshot.ActivePower

	bucket, exists := a.buckets[key]
	if !exists {
		bucket = &powerBucket{maxPower: power, minPower: power}
		a.buckets[key] = bucket
	}

	bucket.totalPower += power
	bucket.readingCount++
	if power > bucket.maxPower {
		bucket.maxPower = power
	}
	if power < bucket.minPower {
		bucket.minPower = power
	}
}

// collectLocked removes and returns the buckets that closed by cutoff, or all of them
func (a *powerAggregator) collectLocked(cutoff time.Time, all bool) []models.PowerBucket {
	out := make([]models.PowerBucket, 0, len(a.buckets))
	for key, bucket := range a.buckets {
		if all || !key.start.Add(a.bucketDuration).After(cutoff) {
			out = append(out, bucket.toModel(key))
			delete(a.buckets, key)
		}
	}
	return out
}

func (b *powerBucket) toModel(key bucketKey) models.PowerBucket {
	return models.PowerBucket{
		MonitorID:    key.monitorID,
		Timestamp:    key.start,
		ReadingCount: b.readingCount,
		MaxPower:     b.maxPower,
		MinPower:     b.minPower,
		AvgPower:     b.totalPower / float64(b.readingCount),
	}
}

// flushClosed writes every bucket whose window has ended
func (a *powerAggregator) flushClosed() {
	a.mutex.Lock()
	buckets := a.collectLocked(a.now(), false)
	a.mutex.Unlock()
	a.write(buckets)
}

// flushAll writes every bucket, including the current one
func (a *powerAggregator) flushAll() {
	a.mutex.Lock()
	buckets := a.collectLocked(time.Time{}, true)
	a.mutex.Unlock()
	a.write(buckets)
}

func (a *powerAggregator) write(buckets []models.PowerBucket) {
	if len(buckets) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := a.writer.WritePowerBuckets(ctx, buckets); err != nil {
		log.WithError(err).WithField("buckets", len(buckets)).Error("Error writing power buckets")
	}
}

func (a *powerAggregator) periodicFlush() {
	defer a.flushed.Done()

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.flushClosed()
		}
	}
}

func (a *powerAggregator) stop() {
	close(a.done)
	a.flushed.Wait()
	a.flushAll()
}
