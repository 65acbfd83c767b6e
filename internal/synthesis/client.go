// Package synthesis provides the HTTP client for the remote speech-synthesis
// service. It implements the /v1/audio/speech and /v1/audio/voices contract
// and normalizes the service's response shapes for the rest of the workflow.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/speech-batch/internal/core"
)

// API endpoints.
const (
	apiSpeech = "/v1/audio/speech"
	apiVoices = "/v1/audio/voices"
)

// HTTP headers.
const (
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	headerDownloadPath = "X-Download-Path"
	contentTypeJSON    = "application/json"
	audioContentPrefix = "audio/"
)

// Client is a client for the speech-synthesis HTTP service.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	responseFormat string
}

// speechRequest is the JSON payload for a synthesis request.
type speechRequest struct {
	Input              string  `json:"input"`
	Model              string  `json:"model"`
	Voice              string  `json:"voice"`
	Speed              float64 `json:"speed"`
	ResponseFormat     string  `json:"response_format"`
	Stream             bool    `json:"stream"`
	ReturnDownloadLink bool    `json:"return_download_link"`
}

// NewClient creates a client for the service at baseURL. The timeout applies
// to every request made by this client; expiry surfaces as a ServiceError.
func NewClient(baseURL, model, responseFormat string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:        strings.TrimRight(baseURL, "/"),
		model:          model,
		responseFormat: responseFormat,
	}
}

// Synthesize converts text into audio with the given voice and speed.
//
// The service may answer with inline audio bytes (Content-Type audio/*) or
// with an X-Download-Path header naming a service-hosted artifact; the
// returned SpeechResult carries whichever the service produced. Blank text
// fails with core.ErrEmptyInput before any network call.
func (c *Client) Synthesize(
	ctx context.Context,
	text, voice string,
	speed float64,
) (core.SpeechResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return core.SpeechResult{}, core.ErrEmptyInput
	}

	payload := speechRequest{
		Input:              trimmed,
		Model:              c.model,
		Voice:              voice,
		Speed:              speed,
		ResponseFormat:     c.responseFormat,
		Stream:             false,
		ReturnDownloadLink: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.SpeechResult{}, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSpeech,
		bytes.NewReader(body),
	)
	if err != nil {
		return core.SpeechResult{}, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, audioContentPrefix+"*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.SpeechResult{}, transportError(c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return core.SpeechResult{}, statusError(resp)
	}

	return c.decodeSpeechResponse(resp)
}

// decodeSpeechResponse resolves a successful response into inline audio or an
// absolute download URL.
func (c *Client) decodeSpeechResponse(resp *http.Response) (core.SpeechResult, error) {
	contentType := resp.Header.Get(headerContentType)
	if strings.HasPrefix(contentType, audioContentPrefix) {
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return core.SpeechResult{}, fmt.Errorf("failed to read audio body: %w", err)
		}

		return core.SpeechResult{Audio: audio, DownloadURL: ""}, nil
	}

	downloadPath := resp.Header.Get(headerDownloadPath)
	if downloadPath != "" {
		absolute, err := url.JoinPath(c.baseURL, downloadPath)
		if err != nil {
			return core.SpeechResult{}, fmt.Errorf(
				"failed to resolve download path %q: %w", downloadPath, err)
		}

		return core.SpeechResult{Audio: nil, DownloadURL: absolute}, nil
	}

	return core.SpeechResult{}, core.ErrUnrecognizedResponse
}

// FetchAudio retrieves the audio bytes behind a service-hosted download URL.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(audioURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	return data, nil
}

// ListVoices fetches the available voice identifiers. The service is not
// consistent about its response shape, so the body is normalized by a
// sequence of shape matchers; see parseVoiceList. Callers are expected to
// fall back to a configured default list on error rather than surface the
// failure to the user.
func (c *Client) ListVoices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+apiVoices,
		http.NoBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice list body: %w", err)
	}

	return parseVoiceList(body)
}
