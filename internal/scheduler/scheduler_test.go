package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
)

type fakeHome struct {
	rep   models.HomeReport
	err   error
	calls int
	day   models.Date
}

func (f *fakeHome) Today() models.Date { return "2024-06-01" }

func (f *fakeHome) Home(ctx context.Context, today models.Date) (models.HomeReport, error) {
	f.calls++
	f.day = today
	return f.rep, f.err
}

type funcJob struct {
	fn func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return "func" }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestSnapshotJobPublishesGauges(t *testing.T) {
	var rep models.HomeReport
	rep.Executive.TotalPipeline = decimal.NewFromInt(6850)
	rep.Executive.WinRate = 67
	rep.Sales.NeedsAction = 2
	home := &fakeHome{rep: rep}
	m := metrics.New()

	s := New(nil, time.Second)
	require.NoError(t, s.RunNow(context.Background(), NewSnapshotJob(home, m, nil)))

	assert.Equal(t, 1, home.calls)
	assert.Equal(t, models.Date("2024-06-01"), home.day)
	body := scrape(t, m)
	assert.Contains(t, body, "dealpipe_pipeline_open_amount 6850")
	assert.Contains(t, body, "dealpipe_win_rate_percent 67")
	assert.Contains(t, body, "dealpipe_action_required_deals 2")
}

func TestSnapshotJobError(t *testing.T) {
	home := &fakeHome{err: errors.New("crm down")}
	job := NewSnapshotJob(home, nil, nil)
	assert.EqualError(t, job.Run(context.Background()), "crm down")
	assert.Equal(t, "pipeline_snapshot", job.Name())
}

func TestRunNowTimeout(t *testing.T) {
	s := New(nil, 10*time.Millisecond)
	err := s.RunNow(context.Background(), funcJob{fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowJob struct {
	funcJob
	timeout time.Duration
}

func (j slowJob) Timeout() time.Duration { return j.timeout }

func TestRunNowJobTimeoutOverrides(t *testing.T) {
	s := New(nil, 10*time.Millisecond)
	job := slowJob{timeout: time.Second, funcJob: funcJob{fn: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	}}}
	assert.NoError(t, s.RunNow(context.Background(), job))
}

func TestAddJob(t *testing.T) {
	s := New(nil, 0)
	assert.Error(t, s.AddJob("not a schedule", funcJob{fn: func(context.Context) error { return nil }}))

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("@every 1s", funcJob{fn: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
