package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxAttachmentBytes caps how much of a text attachment is read into a prompt.
const maxAttachmentBytes = 1 << 20

// AttachmentFetcher downloads text attachments from the Discord CDN.
type AttachmentFetcher struct {
	httpClient *http.Client
}

func NewAttachmentFetcher(httpClient *http.Client) *AttachmentFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AttachmentFetcher{httpClient: httpClient}
}

// FetchText returns the body of url, truncated to maxAttachmentBytes.
func (f *AttachmentFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("discord: create attachment request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discord: fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("discord: fetch attachment: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return "", fmt.Errorf("discord: read attachment: %w", err)
	}
	return string(body), nil
}
