package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStackBasedRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(time.Minute)
	limiter.now = func() time.Time { return now }

	limited, stats := limiter.StackBasedRateLimited("a.go:1")
	assert.False(t, limited)
	assert.Nil(t, stats.lastReportTime)

	now = now.Add(10 * time.Second)
	limited, _ = limiter.StackBasedRateLimited("a.go:1")
	assert.True(t, limited)

	limited, _ = limiter.StackBasedRateLimited("b.go:2")
	assert.False(t, limited, "other origins are tracked separately")

	now = now.Add(time.Minute)
	limited, stats = limiter.StackBasedRateLimited("a.go:1")
	assert.False(t, limited)
	assert.Equal(t, 1, stats.occurCountSinceLastReport)
	assert.Equal(t, 2, stats.totalOccurCount)
}

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) Report(err error) { r.errs = append(r.errs, err) }

func TestReportSkipsUserDrivenKinds(t *testing.T) {
	t.Setenv(debugMode, "")
	ResetReporters()
	defer ResetReporters()
	rec := &recordingReporter{}
	Register(rec)

	report(NewKind(KindUserRejected, "denied"))
	report(NewKind(KindTransactionFailed, "reverted"))
	report(New("plain"))

	assert.Len(t, rec.errs, 2)
}
