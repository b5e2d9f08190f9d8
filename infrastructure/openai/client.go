package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"llm-stream/domain/chat"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	chatCompletionsPath = "/chat/completions"
)

// Config configures a streaming Client.
type Config struct {
	APIKey       string
	BaseURL      string // optional; defaults to the OpenAI API
	DefaultModel string // model used when the request carries chat.DefaultModel()
	RefererURL   string // optional attribution headers for OpenRouter-style endpoints
	AppName      string
	HTTPClient   *http.Client // optional; a pooled client is built when nil
	Diagnostics  Diagnostics  // optional; defaults to the logrus sink
}

// Client streams chat completions from an OpenAI-compatible endpoint. Each
// call to a Stream* method owns an independent connection; nothing is shared
// across concurrent exchanges.
type Client struct {
	apiKey       string
	baseURL      string
	defaultModel string
	refererURL   string
	appName      string
	httpClient   *http.Client
	diag         Diagnostics
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			MaxConnsPerHost:       200,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		}
		// No overall client timeout: it would cut long-lived streams short.
		// Read deadlines are the transport's concern.
		httpClient = &http.Client{Transport: transport}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	diag := cfg.Diagnostics
	if diag == nil {
		diag = NewLogDiagnostics()
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: cfg.DefaultModel,
		refererURL:   cfg.RefererURL,
		appName:      cfg.AppName,
		httpClient:   httpClient,
		diag:         diag,
	}
}

// apiChatRequest is the wire shape sent to the endpoint.
type apiChatRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

// wireRequest builds the outbound payload from a caller request. The caller's
// stream flag is discarded: streaming is always forced on, as a documented
// side effect rather than a validation error.
func (c *Client) wireRequest(req *chat.Request) apiChatRequest {
	streamed := req.Clone()
	streamed.Stream = true
	return apiChatRequest{
		Model:       streamed.Model.Resolve(c.defaultModel),
		Messages:    streamed.Messages,
		Stream:      streamed.Stream,
		Temperature: streamed.Temperature,
		MaxTokens:   streamed.MaxTokens,
	}
}

// StreamPrompt streams a completion for a single prompt with an optional
// system prompt, using the client's default model.
func (c *Client) StreamPrompt(ctx context.Context, prompt, systemPrompt string) (chat.FragmentStream, error) {
	messages := make([]chat.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, chat.Message{Role: chat.RoleUser, Content: prompt})
	return c.StreamMessages(ctx, messages)
}

// StreamMessages streams a completion for an explicit message list, using the
// client's default model.
func (c *Client) StreamMessages(ctx context.Context, messages []chat.Message) (chat.FragmentStream, error) {
	return c.StreamCompletion(ctx, &chat.Request{Model: chat.DefaultModel(), Messages: messages})
}

// StreamCompletion opens one streamed exchange and returns its fragment
// sequence. Setup failures (request build, connection, non-2xx status) are
// returned synchronously; once a stream is returned, failures surface through
// its own Err after the fragment channel closes.
func (c *Client) StreamCompletion(ctx context.Context, req *chat.Request) (chat.FragmentStream, error) {
	body, err := json.Marshal(c.wireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// The derived context is the stream's cancellation handle: Close or a
	// parent cancellation aborts the in-flight response body read.
	streamCtx, cancel := context.WithCancel(ctx)

	hreq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.refererURL != "" {
		hreq.Header.Set("HTTP-Referer", c.refererURL)
	}
	if c.appName != "" {
		hreq.Header.Set("X-Title", c.appName)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", chat.ErrResponseParsing, err)
	}

	if !chat.StatusOK(resp.StatusCode) {
		resp.Body.Close()
		cancel()
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"url":    c.baseURL + chatCompletionsPath,
		}).Error("Streaming request rejected")
		return nil, &chat.RequestFailedError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	stream := newStream(cancel)
	go stream.run(streamCtx, resp.Body, c.diag)
	return stream, nil
}
