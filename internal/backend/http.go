package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client over the backend's REST + streaming API.
type HTTPClient struct {
	baseURL   string
	client    *http.Client // request/response endpoints
	streaming *http.Client // ProcessMessage, generation can run for minutes
}

func NewHTTPClient(baseURL string, requestTimeout, streamTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: requestTimeout},
		streaming: &http.Client{Timeout: streamTimeout},
	}
}

func (c *HTTPClient) RegisterUser(ctx context.Context, phoneNum, preferredLanguage string) error {
	body := map[string]string{
		"phone_num":          phoneNum,
		"preferred_language": preferredLanguage,
	}
	if err := c.postJSON(ctx, "/users/register", body, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	return nil
}

func (c *HTTPClient) UserExists(ctx context.Context, phoneNum string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	path := "/users/exists?phone_num=" + url.QueryEscape(phoneNum)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUserExistsCheck, err)
	}
	return out.Exists, nil
}

func (c *HTTPClient) UpdateLocation(ctx context.Context, phoneNum string, latitude, longitude float64) error {
	body := map[string]interface{}{
		"phone_num": phoneNum,
		"latitude":  latitude,
		"longitude": longitude,
	}
	if err := c.postJSON(ctx, "/users/location", body, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrLocationUpdate, err)
	}
	return nil
}

func (c *HTTPClient) CreateThread(ctx context.Context, phoneNum, title string) (string, error) {
	body := map[string]string{
		"phone_num": phoneNum,
		"title":     title,
	}
	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.postJSON(ctx, "/threads", body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadCreation, err)
	}
	if out.ThreadID == "" {
		return "", fmt.Errorf("%w: backend returned empty thread id", ErrThreadCreation)
	}
	return out.ThreadID, nil
}

func (c *HTTPClient) LastThreadInfo(ctx context.Context, phoneNum string) (*ThreadInfo, error) {
	var out struct {
		ThreadID        string `json:"thread_id"`
		LastMessageTime string `json:"last_message_time"`
	}
	path := "/threads/last?phone_num=" + url.QueryEscape(phoneNum)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrThreadInfo, err)
	}
	info := &ThreadInfo{ThreadID: out.ThreadID}
	if out.LastMessageTime != "" {
		t, err := time.Parse(time.RFC3339, out.LastMessageTime)
		if err != nil {
			return nil, fmt.Errorf("%w: bad last_message_time %q", ErrThreadInfo, out.LastMessageTime)
		}
		info.LastMessageTime = &t
	}
	return info, nil
}

func (c *HTTPClient) ThreadHistory(ctx context.Context, phoneNum, threadID string) ([]ThreadMessage, error) {
	var out struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "?phone_num=" + url.QueryEscape(phoneNum)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrThreadHistory, err)
	}
	msgs := make([]ThreadMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, ThreadMessage{Role: m.Role, Content: m.Content})
	}
	return msgs, nil
}

func (c *HTTPClient) ProcessMessage(ctx context.Context, phoneNum, threadID, message string) (string, error) {
	body := map[string]string{
		"phone_num": phoneNum,
		"content":   message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMessageProcessing, err)
	}

	u := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/process"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMessageProcessing, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMessageProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrMessageProcessing, resp.StatusCode, detail)
	}

	// The backend streams the response in chunks. Accumulate the whole
	// thing: WhatsApp has no partial-message edit, so nothing can be sent
	// until generation finishes.
	var sb strings.Builder
	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: stream read: %v", ErrMessageProcessing, err)
		}
	}
	return sb.String(), nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
