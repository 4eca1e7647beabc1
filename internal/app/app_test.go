package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seteams/hubcore/internal/config"
	"github.com/seteams/hubcore/internal/identity"
	"github.com/seteams/hubcore/internal/scanning"
)

func TestBuildScanners_SignatureOnlyByDefault(t *testing.T) {
	cfg := &config.Config{}
	scanners := buildScanners(cfg)

	require.Len(t, scanners, 1)
	assert.Equal(t, scanning.SourceSignature, scanners[0].Source())
}

func TestBuildScanners_NetworkScannersWhenConfigured(t *testing.T) {
	cfg := &config.Config{
		ReputationProxyURL:   "https://proxy.example",
		ThirdPartyScanAPIKey: "key",
	}
	scanners := buildScanners(cfg)

	require.Len(t, scanners, 3)
	assert.Equal(t, scanning.SourceReputation, scanners[1].Source())
	assert.Equal(t, scanning.SourceThirdParty, scanners[2].Source())
}

func TestUploadOptions_FromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	a := &App{Config: cfg}

	opts := a.UploadOptions()
	assert.True(t, opts.StripExif)
	assert.True(t, opts.ReencodeImages)
	assert.Equal(t, 64*1024, opts.ChunkSize)
	assert.Equal(t, 3, opts.Concurrency)
}

func TestNewSessionToken_RoundTrip(t *testing.T) {
	cfg := &config.Config{
		SecretKey:                    "test-secret",
		SessionTokenValidityDuration: time.Hour,
	}
	a := &App{Config: cfg}

	tok, err := a.NewSessionToken("alice")
	require.NoError(t, err)

	userID, err := identity.GetUserIDFromToken(tok, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}
