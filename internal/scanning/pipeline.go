package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/seteams/hubcore/internal/logging"
)

// FailurePolicy decides how a scanner's own failure is treated.
type FailurePolicy int

const (
	// FailOpen treats a scanner error as "clean". For supplementary
	// signals only.
	FailOpen FailurePolicy = iota

	// FailClosed treats a scanner error as "not clean" and rejects the
	// upload. For primary gates.
	FailClosed
)

// Scanner is one independent threat check.
type Scanner interface {
	Source() Source
	Policy() FailurePolicy
	Scan(ctx context.Context, name string, data []byte) (*Result, error)
}

// Pipeline runs the configured scanners and reduces their verdicts:
// clean is the AND of all individual results, threats are the union.
type Pipeline struct {
	scanners []Scanner
	logger   logging.Logger
	now      func() time.Time
}

func NewPipeline(logger logging.Logger, scanners ...Scanner) *Pipeline {
	return &Pipeline{
		scanners: scanners,
		logger:   logger.With("module", "scanning"),
		now:      time.Now,
	}
}

// Scan checks the file against every configured scanner. An absent scanner
// is equivalent to a skipped check, never a failure; with no scanners
// configured the file passes.
func (p *Pipeline) Scan(ctx context.Context, name string, data []byte) *Result {
	combined := &Result{Clean: true, Threats: []Threat{}, Source: SourceCombined, Timestamp: p.now()}

	ran := 0
	var last Source
	for _, scanner := range p.scanners {
		result, err := scanner.Scan(ctx, name, data)
		if err != nil {
			switch scanner.Policy() {
			case FailClosed:
				p.logger.Error(ctx, "gating scan failed, rejecting", "source", scanner.Source(), "error", err.Error())
				combined.Clean = false
				combined.Threats = append(combined.Threats, Threat{
					Type:        ThreatUnknown,
					Name:        "Scan Error",
					Description: "Unable to verify file safety",
				})
			default:
				p.logger.Warn(ctx, "supplementary scan failed, passing", "source", scanner.Source(), "error", err.Error())
			}
			ran++
			last = scanner.Source()
			continue
		}

		combined.Clean = combined.Clean && result.Clean
		combined.Threats = append(combined.Threats, result.Threats...)
		ran++
		last = scanner.Source()
	}

	if ran == 1 {
		combined.Source = last
	}
	return combined
}

// hashHex is the SHA-256 content hash sent to lookup endpoints.
func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
