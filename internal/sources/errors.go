package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/mmcdole/gofeed"

	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/retry"
)

// classify maps a source failure onto the error kinds the fetcher's retry
// policy understands. Transport failures and throttling are transient;
// malformed responses and client errors are not.
func classify(source string, err error) error {
	if err == nil {
		return nil
	}
	var kindErr *models.Error
	if errors.As(err, &kindErr) {
		return err
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return retry.StatusError(source, "", httpErr.StatusCode, "")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return transportError(source, err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewError(models.KindCancelled, source, "", err)
	}
	return models.NewError(models.KindNetworkPermanent, source, "", err)
}

func transportError(source string, err error) error {
	if errors.Is(err, context.Canceled) {
		return models.NewError(models.KindCancelled, source, "", err)
	}
	return models.NewError(models.KindNetworkTransient, source, "", err)
}

// do sends req and classifies both transport errors and non-2xx answers.
// The caller owns the body on success.
func do(client *http.Client, source string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(source, err)
	}
	if err := retry.StatusError(source, "", resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
