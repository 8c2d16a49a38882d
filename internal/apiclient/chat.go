package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/designdrill/internal/domain"
)

// OpenChat sends a chat message with the current diagram and returns the
// streamed reply body. The caller must close it.
func (c *Client) OpenChat(ctx context.Context, sessionID, message string, diagram domain.Diagram) (io.ReadCloser, error) {
	req, err := newJSONRequest(http.MethodPost, sessionPath(sessionID, "/ai-chat"), domain.AIChatRequest{
		Message:     message,
		DiagramData: diagram,
	})
	if err != nil {
		return nil, err
	}
	req.accept = "text/event-stream"

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, fmt.Errorf("open chat stream: %w", newAPIError(resp))
	}
	return resp.Body, nil
}
