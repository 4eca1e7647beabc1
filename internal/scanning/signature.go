package scanning

import (
	"bytes"
	"context"
	"time"
)

// eicarSignature is the standard antivirus test string. Any file containing
// it must be reported as a detection.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// SignatureScanner is a best-effort local check against a static signature
// set: known-bad content hashes plus embedded byte patterns. When it is not
// configured the pipeline simply runs without it.
type SignatureScanner struct {
	badHashes map[string]string // sha256 hex -> signature name
	patterns  map[string][]byte // signature name -> pattern
}

func NewSignatureScanner(badHashes map[string]string) *SignatureScanner {
	if badHashes == nil {
		badHashes = map[string]string{}
	}
	return &SignatureScanner{
		badHashes: badHashes,
		patterns: map[string][]byte{
			"Eicar-Test-Signature": []byte(eicarSignature),
		},
	}
}

func (s *SignatureScanner) Source() Source        { return SourceSignature }
func (s *SignatureScanner) Policy() FailurePolicy { return FailOpen }

func (s *SignatureScanner) Scan(ctx context.Context, name string, data []byte) (*Result, error) {
	result := &Result{Clean: true, Threats: []Threat{}, Source: SourceSignature, Timestamp: time.Now()}

	if sig, ok := s.badHashes[hashHex(data)]; ok {
		result.Clean = false
		result.Threats = append(result.Threats, Threat{
			Type: ThreatMalware,
			Name: sig,
		})
	}

	for sig, pattern := range s.patterns {
		if bytes.Contains(data, pattern) {
			result.Clean = false
			result.Threats = append(result.Threats, Threat{
				Type: ThreatVirus,
				Name: sig,
			})
		}
	}

	return result, nil
}
