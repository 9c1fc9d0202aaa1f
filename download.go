package coqui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var errNoAudioURL = errors.New("sample has no audio url yet")

func (c *Client) downloadOp(ctx context.Context, url string, w io.Writer) error {
	var rc *resty.Client
	if c.httpClient != nil {
		rc = resty.NewWithClient(c.httpClient)
	} else {
		rc = resty.New()
	}
	defer rc.GetClient().CloseIdleConnections()

	// Signed URLs carry their own credentials, so no API token is attached.
	resp, err := rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return &TransportError{Op: "DownloadFile", Err: err}
	}
	body := resp.RawBody()
	defer body.Close()
	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return &TransportError{Op: "DownloadFile", StatusCode: code}
	}
	if _, err := io.Copy(w, body); err != nil {
		return &TransportError{Op: "DownloadFile", Err: err}
	}
	return nil
}

// DownloadFile streams the file at url, typically a sample's signed audio
// URL, into w.
func (c *Client) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	_, err := runSync(ctx, "DownloadFile", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.downloadOp(ctx, url, w)
	})
	return err
}

// DownloadFileAsync is DownloadFile for async flows.
func (c *Client) DownloadFileAsync(ctx context.Context, url string, w io.Writer) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.downloadOp(ctx, url, w)
	})
}

// DownloadAudio is a convenience wrapper downloading this sample's audio.
func (s Sample) DownloadAudio(ctx context.Context, c *Client, w io.Writer) error {
	if strings.TrimSpace(s.AudioURL) == "" {
		return &TransportError{Op: "DownloadFile", Err: errNoAudioURL}
	}
	return c.DownloadFile(ctx, s.AudioURL, w)
}
