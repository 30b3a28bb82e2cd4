package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client calls an HTTP OCR service that accepts a base64 image and returns
// recognized text with a confidence estimate.
type Client struct {
	BaseURL  string
	APIKey   string
	Language string
	client   *http.Client
}

func NewClient(baseURL, apiKey, language string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Language: language,
		client:   http.DefaultClient,
	}
}

type recognizeRequest struct {
	Image    string `json:"image"`
	Language string `json:"language,omitempty"`
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize submits the image and returns the recognized text.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	payload := recognizeRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Language: c.Language,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/ocr", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrOCRFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%w: status %d: %s", ErrOCRFailure, resp.StatusCode, string(raw))
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("%w: decode: %v", ErrOCRFailure, err)
	}

	return parsed.Text, parsed.Confidence, nil
}
