package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ReputationScanner checks the file's content hash against a reputation
// proxy endpoint. This is the primary malware/phishing gate, so it is
// fail-closed: any network or parse error rejects the upload.
type ReputationScanner struct {
	proxyURL string
	client   *http.Client
}

func NewReputationScanner(proxyURL string, client *http.Client) *ReputationScanner {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ReputationScanner{proxyURL: proxyURL, client: client}
}

func (s *ReputationScanner) Source() Source        { return SourceReputation }
func (s *ReputationScanner) Policy() FailurePolicy { return FailClosed }

type reputationRequest struct {
	Hash string `json:"hash"`
	URL  string `json:"url,omitempty"`
}

type reputationMatch struct {
	ThreatType   string `json:"threatType"`
	PlatformType string `json:"platformType"`
}

type reputationResponse struct {
	Matches []reputationMatch `json:"matches"`
}

func (s *ReputationScanner) Scan(ctx context.Context, name string, data []byte) (*Result, error) {
	body, err := json.Marshal(reputationRequest{Hash: hashHex(data), URL: name})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.proxyURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reputation check failed: %s", resp.Status)
	}

	var parsed reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("reputation response parse: %w", err)
	}

	// The endpoint is untrusted input; matches are normalized into the
	// internal taxonomy.
	threats := make([]Threat, 0, len(parsed.Matches))
	for _, match := range parsed.Matches {
		label := match.ThreatType
		if label == "" {
			label = "Unknown threat"
		}
		threats = append(threats, Threat{
			Type:        normalizeThreatType(match.ThreatType),
			Name:        label,
			Description: match.PlatformType,
		})
	}

	return &Result{
		Clean:     len(threats) == 0,
		Threats:   threats,
		Source:    SourceReputation,
		Timestamp: time.Now(),
	}, nil
}
