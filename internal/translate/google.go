package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// GoogleTranslator calls the Google Translate v2 REST endpoint.
type GoogleTranslator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGoogle(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *GoogleTranslator {
	return &GoogleTranslator{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type googleRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	// Text travels as JSON data only, never as part of the URL or a template.
	body, err := json.Marshal(googleRequest{Q: text, Target: targetLang, Format: "text"})
	if err != nil {
		return "", fmt.Errorf("translate: encode request: %w", err)
	}

	endpoint := g.endpoint
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("translation provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("target", targetLang),
		)
		return "", fmt.Errorf("translate: provider status %d", resp.StatusCode)
	}

	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty provider response")
	}
	return out.Data.Translations[0].TranslatedText, nil
}
