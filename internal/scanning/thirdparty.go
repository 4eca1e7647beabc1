package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultThirdPartyBaseURL = "https://urlscan.io/api/v1"

// ThirdPartyScanner searches an external scan index for the file's content
// hash. It is a supplementary signal, only constructed when an API key is
// configured, and fail-open: its errors never block an upload.
type ThirdPartyScanner struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewThirdPartyScanner(apiKey, baseURL string, client *http.Client) *ThirdPartyScanner {
	if baseURL == "" {
		baseURL = defaultThirdPartyBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ThirdPartyScanner{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (s *ThirdPartyScanner) Source() Source        { return SourceThirdParty }
func (s *ThirdPartyScanner) Policy() FailurePolicy { return FailOpen }

type thirdPartyResponse struct {
	Results []json.RawMessage `json:"results"`
}

func (s *ThirdPartyScanner) Scan(ctx context.Context, name string, data []byte) (*Result, error) {
	url := fmt.Sprintf("%s/search/?q=hash:%s", s.baseURL, hashHex(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hash lookup failed: %s", resp.Status)
	}

	var parsed thirdPartyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("hash lookup parse: %w", err)
	}

	result := &Result{Clean: true, Threats: []Threat{}, Source: SourceThirdParty, Timestamp: time.Now()}
	if len(parsed.Results) > 0 {
		result.Clean = false
		result.Threats = append(result.Threats, Threat{
			Type:        ThreatSuspicious,
			Name:        "File hash found in threat database",
			Description: "File hash matches known suspicious content",
		})
	}
	return result, nil
}
