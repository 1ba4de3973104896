package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/reelforge/clip-engine/log"
)

type Retries struct {
	count          int
	lastStatusCode int
}

// MonitorRequest records client metrics around a single logical request.
// Clients built on retryablehttp should install HttpRetryHook as their
// CheckRetry so that retries and the final status code are tracked; plain
// clients are treated as a single attempt.
func MonitorRequest(clientMetrics ClientMetrics, client *http.Client, r *http.Request) (*http.Response, error) {
	ctx := context.WithValue(r.Context(), RetriesKey, &Retries{-1, 0})
	req := r.WithContext(ctx)

	start := time.Now()
	res, err := client.Do(req)
	duration := time.Since(start)

	retries := ctx.Value(RetriesKey).(*Retries)
	if retries.count < 0 {
		// no retry hook ran, read the single attempt directly
		retries.count = 0
		if res != nil {
			retries.lastStatusCode = res.StatusCode
		} else {
			retries.lastStatusCode = 999
		}
	}
	if retries.lastStatusCode >= 400 {
		clientMetrics.FailureCount.WithLabelValues(req.URL.Host, fmt.Sprint(retries.lastStatusCode)).Inc()
		return res, err
	}

	clientMetrics.RequestDuration.WithLabelValues(req.URL.Host).Observe(duration.Seconds())
	clientMetrics.RetryCount.WithLabelValues(req.URL.Host).Set(float64(retries.count))
	if clientMetrics.RequestCount != nil {
		clientMetrics.RequestCount.WithLabelValues(req.URL.Host).Inc()
	}

	return res, err
}

func HttpRetryHook(ctx context.Context, res *http.Response, err error) (bool, error) {
	retries := ctx.Value(RetriesKey).(*Retries)
	if res == nil {
		// TODO: have a better way to represent closed/refused connections and timeouts
		retries.lastStatusCode = 999
	} else {
		retries.lastStatusCode = res.StatusCode
	}
	retries.count++

	retry, policyErr := retryablehttp.DefaultRetryPolicy(ctx, res, err)
	if retry {
		// the job id rides on the request context when a pipeline stage
		// issued this request
		log.LogCtx(ctx, "retrying http request", "status_code", retries.lastStatusCode, "attempt", retries.count, "err", err)
	}
	return retry, policyErr
}
