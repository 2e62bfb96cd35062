package messenger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 30 * time.Second

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendMediaRequest struct {
	Phone   string `json:"phone"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error,omitempty"`
}

// GatewayMessenger delivers messages through an HTTP gateway that fronts the
// actual chat client. The gateway owns the transport session; this client
// only maps HTTP results onto the engine's failure categories.
type GatewayMessenger struct {
	client  *resty.Client
	baseURL string
}

func NewGatewayMessenger(baseURL, apiKey string) (*GatewayMessenger, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	}

	return NewGatewayMessengerWithClient(baseURL, client)
}

func NewGatewayMessengerWithClient(baseURL string, client *resty.Client) (*GatewayMessenger, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &GatewayMessenger{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (g *GatewayMessenger) SendText(ctx context.Context, address, content string) (string, error) {
	return g.post(ctx, "/api/send/message", sendMessageRequest{
		Phone:   address,
		Message: content,
	})
}

func (g *GatewayMessenger) SendMedia(ctx context.Context, address, mediaRef, caption string) (string, error) {
	return g.post(ctx, "/api/send/media", sendMediaRequest{
		Phone:   address,
		Media:   mediaRef,
		Caption: caption,
	})
}

func (g *GatewayMessenger) post(ctx context.Context, path string, body any) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("messenger is not initialized")
	}

	var parsed sendResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		Post(g.baseURL + path)
	if err != nil {
		return "", &SendError{
			Category: CategoryTransport,
			Message:  "gateway request failed",
			Cause:    err,
		}
	}
	if response == nil {
		return "", &SendError{
			Category: CategoryTransport,
			Message:  "gateway returned empty response",
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return strings.TrimSpace(parsed.MessageID), nil
	}

	return "", &SendError{
		Category: categoryForStatus(statusCode),
		Message:  gatewayErrorMessage(statusCode, response.String(), parsed.Error),
	}
}

func categoryForStatus(statusCode int) Category {
	switch statusCode {
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusForbidden:
		return CategoryBlocked
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	case http.StatusServiceUnavailable:
		return CategoryNotReady
	default:
		return CategoryTransport
	}
}

func gatewayErrorMessage(statusCode int, rawBody, parsedError string) string {
	if msg := strings.TrimSpace(parsedError); msg != "" {
		return msg
	}
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body := strings.TrimSpace(rawBody); body != "" {
		return fmt.Sprintf("%s: %s", base, body)
	}
	return base
}

var _ Messenger = (*GatewayMessenger)(nil)
