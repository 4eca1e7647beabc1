package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/seteams/hubcore/internal/flagx"
	"github.com/seteams/hubcore/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Interval fields use timex.Duration, which parses both string values such
// as "15m" and integer nanoseconds. After unmarshalling, set fields are
// copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	SessionTokenValidityDuration *timex.Duration `json:"session_token_validity_duration"`

	S3AccessKey     string          `json:"s3_access_key"`
	S3SecretKey     string          `json:"s3_secret_key"`
	S3Bucket        string          `json:"s3_bucket"`
	S3Region        string          `json:"s3_region"`
	S3BaseEndpoint  string          `json:"s3_base_endpoint"`
	SignedURLExpiry *timex.Duration `json:"signed_url_expiry"`

	ReputationProxyURL    string `json:"reputation_proxy_url"`
	ThirdPartyScanAPIKey  string `json:"third_party_scan_api_key"`
	ThirdPartyScanBaseURL string `json:"third_party_scan_base_url"`

	StripExif      *bool    `json:"strip_exif"`
	ReencodeImages *bool    `json:"reencode_images"`
	ImageMaxSizeMB *float64 `json:"image_max_size_mb"`

	ChunkSize           *int `json:"chunk_size"`
	TransferConcurrency *int `json:"transfer_concurrency"`

	KeyStoreDir string `json:"key_store_dir"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config command-line
// flags; when neither is set, no JSON file is loaded. Only fields present
// in the file override the existing values. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.SessionTokenValidityDuration != nil {
		config.SessionTokenValidityDuration = time.Duration(c.SessionTokenValidityDuration.Duration)
	}
	if c.S3AccessKey != "" {
		config.S3AccessKey = c.S3AccessKey
	}
	if c.S3SecretKey != "" {
		config.S3SecretKey = c.S3SecretKey
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.SignedURLExpiry != nil {
		config.SignedURLExpiry = time.Duration(c.SignedURLExpiry.Duration)
	}
	if c.ReputationProxyURL != "" {
		config.ReputationProxyURL = c.ReputationProxyURL
	}
	if c.ThirdPartyScanAPIKey != "" {
		config.ThirdPartyScanAPIKey = c.ThirdPartyScanAPIKey
	}
	if c.ThirdPartyScanBaseURL != "" {
		config.ThirdPartyScanBaseURL = c.ThirdPartyScanBaseURL
	}
	if c.StripExif != nil {
		config.StripExif = *c.StripExif
	}
	if c.ReencodeImages != nil {
		config.ReencodeImages = *c.ReencodeImages
	}
	if c.ImageMaxSizeMB != nil {
		config.ImageMaxSizeMB = *c.ImageMaxSizeMB
	}
	if c.ChunkSize != nil {
		config.ChunkSize = *c.ChunkSize
	}
	if c.TransferConcurrency != nil {
		config.TransferConcurrency = *c.TransferConcurrency
	}
	if c.KeyStoreDir != "" {
		config.KeyStoreDir = c.KeyStoreDir
	}
}
