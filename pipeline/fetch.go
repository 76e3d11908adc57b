package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const fetchAttempts = 4

var retryDelay = time.Second

func newClient(userAgent, proxy string) *resty.Client {
	client := resty.New()
	client.
		SetRetryCount(0).
		SetTransport(&http.Transport{
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}).
		SetHeader("Accept", "*/*")
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	if proxy != "" {
		client.SetProxy(proxy)
	}
	return client
}

// fetch downloads url, retrying transport errors and 5xx responses.
func fetch(ctx context.Context, client *resty.Client, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		resp, err := client.R().
			SetContext(ctx).
			Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode() >= 500:
			lastErr = fmt.Errorf("server error: %s", resp.Status())
		case resp.StatusCode() != http.StatusOK:
			return nil, fmt.Errorf("fetch %s: %s", url, resp.Status())
		default:
			return resp.Body(), nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("request failed after retries")
}
