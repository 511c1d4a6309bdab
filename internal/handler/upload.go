package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AttachmentFromCommand returns the single attachment of a command.
func AttachmentFromCommand(resolved *discordgo.ApplicationCommandInteractionDataResolved) (*discordgo.MessageAttachment, error) {
	if resolved == nil {
		return nil, &UserError{Message: "Attach an audio file."}
	}
	if len(resolved.Attachments) != 1 {
		return nil, &UserError{Message: "Attach exactly one audio file."}
	}
	var attachment *discordgo.MessageAttachment
	for _, a := range resolved.Attachments {
		attachment = a
	}
	return attachment, nil
}

// AttachmentFetcher downloads Discord attachments.
type AttachmentFetcher struct {
	httpClient HTTPClient
}

// Fetch opens the attachment at sourceURL. The caller closes the body.
func (a *AttachmentFetcher) Fetch(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	slog.Info("Downloading attachment", "url", sourceURL)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Warn("Failed to download attachment", "url", sourceURL, "error", err)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		slog.Warn("Attachment download failed", "url", sourceURL, "status", resp.Status)
		return nil, fmt.Errorf("failed to download file: %s", resp.Status)
	}
	return resp.Body, nil
}
