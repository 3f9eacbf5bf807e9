package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const webfetchDescription = `Fetches a URL and returns its content.

Usage:
- format selects the returned representation: markdown (default), text or html
- Only http and https URLs are supported
- Responses are capped at 5MB`

const (
	webfetchTimeout  = 30 * time.Second
	webfetchMaxBytes = 5 * 1024 * 1024
)

// WebFetchTool retrieves web pages.
type WebFetchTool struct {
	client *http.Client
}

// WebFetchInput is the webfetch tool's parameters.
type WebFetchInput struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// NewWebFetchTool creates the webfetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: webfetchTimeout}}
}

func (t *WebFetchTool) ID() string          { return "webfetch" }
func (t *WebFetchTool) Description() string { return webfetchDescription }

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch"
			},
			"format": {
				"type": "string",
				"description": "markdown (default), text or html"
			}
		},
		"required": ["url"]
	}`)
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WebFetchInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, fmt.Errorf("only http and https URLs are supported")
	}

	if err := toolCtx.AskPermission(ctx, params.URL, []string{"webfetch:*"}, map[string]any{
		"url": params.URL,
	}); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webfetchMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	output := string(body)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		switch params.Format {
		case "html":
			// raw as-is
		case "text":
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(output))
			if err == nil {
				output = strings.TrimSpace(doc.Text())
			}
		default:
			converter := md.NewConverter("", true, nil)
			if markdown, err := converter.ConvertString(output); err == nil {
				output = markdown
			}
		}
	}

	return &Result{
		Title:  params.URL,
		Output: output,
		Metadata: map[string]any{
			"url":         params.URL,
			"status":      resp.StatusCode,
			"contentType": contentType,
		},
	}, nil
}
