package gmail

import (
	"context"
	"errors"
	"testing"
	"time"

	"mail_server/pkg/apperr"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

func testConnector(sleeps *[]time.Duration) *Connector {
	return &Connector{
		accountID: 1,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "gmail-test",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return false
			},
		}),
		sleep: func(d time.Duration) {
			*sleeps = append(*sleeps, d)
		},
		jitter: func() float64 { return 0.5 },
	}
}

func rateLimitErr() error {
	return &googleapi.Error{
		Code: 403,
		Errors: []googleapi.ErrorItem{
			{Reason: "rateLimitExceeded"},
		},
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&googleapi.Error{Code: 429}))
	assert.True(t, isRetryable(&googleapi.Error{Code: 500}))
	assert.True(t, isRetryable(&googleapi.Error{Code: 503}))
	assert.True(t, isRetryable(rateLimitErr()))
	assert.True(t, isRetryable(&googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
	}))

	assert.False(t, isRetryable(&googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}},
	}))
	assert.False(t, isRetryable(&googleapi.Error{Code: 400}))
	assert.False(t, isRetryable(&googleapi.Error{Code: 404}))
	assert.False(t, isRetryable(errors.New("plain transport error")))
}

func TestExecuteReturnsThirdResponseAfterTwoRateLimits(t *testing.T) {
	var sleeps []time.Duration
	c := testConnector(&sleeps)

	attempts := 0
	result, err := execute(context.Background(), c, "test op", func() (string, error) {
		attempts++
		if attempts <= 2 {
			return "", &googleapi.Error{Code: 429}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)

	// Attempt n sleeps 2^n plus jitter in [0,1) seconds.
	require.Len(t, sleeps, 2)
	assert.GreaterOrEqual(t, sleeps[0], 1*time.Second)
	assert.Less(t, sleeps[0], 2*time.Second)
	assert.GreaterOrEqual(t, sleeps[1], 2*time.Second)
	assert.Less(t, sleeps[1], 3*time.Second)
}

func TestExecuteBackoffBoundsAcrossAllAttempts(t *testing.T) {
	var sleeps []time.Duration
	c := testConnector(&sleeps)

	_, err := execute(context.Background(), c, "test op", func() (string, error) {
		return "", &googleapi.Error{Code: 503}
	})

	require.Error(t, err)
	require.Len(t, sleeps, maxAttempts)
	for n, d := range sleeps {
		lower := time.Duration(int64(1)<<n) * time.Second
		assert.GreaterOrEqual(t, d, lower, "attempt %d", n)
		assert.Less(t, d, lower+time.Second, "attempt %d", n)
	}
}

func TestExecuteExhaustionReturnsFailedRequest(t *testing.T) {
	var sleeps []time.Duration
	c := testConnector(&sleeps)

	attempts := 0
	_, err := execute(context.Background(), c, "test op", func() (string, error) {
		attempts++
		return "", rateLimitErr()
	})

	require.Error(t, err)
	assert.Equal(t, maxAttempts, attempts)
	assert.True(t, apperr.IsCode(err, apperr.CodeFailedRequest))
}

func TestExecutePropagatesNonRetryableImmediately(t *testing.T) {
	var sleeps []time.Duration
	c := testConnector(&sleeps)

	attempts := 0
	_, err := execute(context.Background(), c, "test op", func() (string, error) {
		attempts++
		return "", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "domainPolicy"}}}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeps)

	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
}

func TestHistoryIDWatermark(t *testing.T) {
	var sleeps []time.Duration
	c := testConnector(&sleeps)

	assert.Equal(t, uint64(0), c.HistoryID())
	c.SetHistoryID(100)
	assert.Equal(t, uint64(100), c.HistoryID())
}
