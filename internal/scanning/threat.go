// Package scanning gates uploads on malware/phishing checks. Zero or more
// independent scanners run per file; the pipeline reduces their verdicts to
// a single clean/unclean result. Each scanner carries an explicit failure
// policy deciding whether its errors pass or reject the file.
package scanning

import "time"

// ThreatType classifies a detected threat.
type ThreatType string

const (
	ThreatMalware    ThreatType = "malware"
	ThreatVirus      ThreatType = "virus"
	ThreatTrojan     ThreatType = "trojan"
	ThreatPhishing   ThreatType = "phishing"
	ThreatSuspicious ThreatType = "suspicious"
	ThreatUnknown    ThreatType = "unknown"
)

// Threat is one normalized finding.
type Threat struct {
	Type        ThreatType `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
}

// Source tags which scanner produced a result.
type Source string

const (
	SourceSignature  Source = "signature"
	SourceReputation Source = "reputation"
	SourceThirdParty Source = "thirdparty"
	SourceCombined   Source = "combined"
)

// Result is the verdict of one scanner, or the reduced verdict of the whole
// pipeline. A value type, never persisted mutably.
type Result struct {
	Clean     bool      `json:"clean"`
	Threats   []Threat  `json:"threats"`
	Source    Source    `json:"scanMethod"`
	Timestamp time.Time `json:"timestamp"`
}

// normalizeThreatType maps reputation-endpoint threat labels into the
// internal taxonomy. Unrecognized labels collapse to unknown.
func normalizeThreatType(label string) ThreatType {
	switch label {
	case "MALWARE":
		return ThreatMalware
	case "SOCIAL_ENGINEERING":
		return ThreatPhishing
	case "UNWANTED_SOFTWARE":
		return ThreatMalware
	case "POTENTIALLY_HARMFUL_APPLICATION":
		return ThreatSuspicious
	default:
		return ThreatUnknown
	}
}
