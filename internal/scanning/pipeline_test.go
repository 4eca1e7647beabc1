package scanning

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/seteams/hubcore/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestPipeline_NoScannersPasses(t *testing.T) {
	p := NewPipeline(testLogger())

	result := p.Scan(context.Background(), "file.txt", []byte("content"))
	assert.True(t, result.Clean)
	assert.Empty(t, result.Threats)
}

func TestSignatureScanner_DetectsEicar(t *testing.T) {
	s := NewSignatureScanner(nil)

	result, err := s.Scan(context.Background(), "eicar.com", []byte(eicarSignature))
	require.NoError(t, err)
	assert.False(t, result.Clean)
	require.Len(t, result.Threats, 1)
	assert.Equal(t, ThreatVirus, result.Threats[0].Type)
}

func TestSignatureScanner_CleanFile(t *testing.T) {
	s := NewSignatureScanner(nil)

	result, err := s.Scan(context.Background(), "ok.txt", []byte("plain content"))
	require.NoError(t, err)
	assert.True(t, result.Clean)
}

func TestSignatureScanner_KnownBadHash(t *testing.T) {
	data := []byte("dropper payload")
	s := NewSignatureScanner(map[string]string{hashHex(data): "Win32.TestDropper"})

	result, err := s.Scan(context.Background(), "dropper.exe", data)
	require.NoError(t, err)
	assert.False(t, result.Clean)
	assert.Equal(t, "Win32.TestDropper", result.Threats[0].Name)
}

func TestReputationScanner_MatchesNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"matches":[{"threatType":"SOCIAL_ENGINEERING","platformType":"ANY_PLATFORM"}]}`))
	}))
	defer srv.Close()

	s := NewReputationScanner(srv.URL, srv.Client())

	result, err := s.Scan(context.Background(), "page.html", []byte("content"))
	require.NoError(t, err)
	assert.False(t, result.Clean)
	require.Len(t, result.Threats, 1)
	assert.Equal(t, ThreatPhishing, result.Threats[0].Type)
	assert.Equal(t, "SOCIAL_ENGINEERING", result.Threats[0].Name)
}

func TestReputationScanner_CleanResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	s := NewReputationScanner(srv.URL, srv.Client())

	result, err := s.Scan(context.Background(), "ok.txt", []byte("content"))
	require.NoError(t, err)
	assert.True(t, result.Clean)
}

func TestPipeline_ReputationErrorFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPipeline(testLogger(), NewReputationScanner(srv.URL, srv.Client()))

	result := p.Scan(context.Background(), "file.bin", []byte("content"))
	assert.False(t, result.Clean, "gating scan errors must reject")
	require.Len(t, result.Threats, 1)
	assert.Equal(t, ThreatUnknown, result.Threats[0].Type)
}

func TestPipeline_ThirdPartyErrorFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPipeline(testLogger(), NewThirdPartyScanner("key", srv.URL, srv.Client()))

	result := p.Scan(context.Background(), "file.bin", []byte("content"))
	assert.True(t, result.Clean, "supplementary scan errors must pass")
	assert.Empty(t, result.Threats)
}

func TestThirdPartyScanner_HashFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("API-Key"))
		w.Write([]byte(`{"results":[{"task":{}}]}`))
	}))
	defer srv.Close()

	s := NewThirdPartyScanner("key", srv.URL, srv.Client())

	result, err := s.Scan(context.Background(), "file.bin", []byte("content"))
	require.NoError(t, err)
	assert.False(t, result.Clean)
	assert.Equal(t, ThreatSuspicious, result.Threats[0].Type)
}

func TestPipeline_ReducesAcrossScanners(t *testing.T) {
	reputation := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches":[{"threatType":"MALWARE"}]}`))
	}))
	defer reputation.Close()

	p := NewPipeline(testLogger(),
		NewSignatureScanner(nil),
		NewReputationScanner(reputation.URL, reputation.Client()),
	)

	result := p.Scan(context.Background(), "bad.bin", []byte("content"))
	assert.False(t, result.Clean, "one unclean source makes the verdict unclean")
	assert.Equal(t, SourceCombined, result.Source)
	require.Len(t, result.Threats, 1)
	assert.Equal(t, ThreatMalware, result.Threats[0].Type)
}

func TestPipeline_SingleScannerKeepsItsSource(t *testing.T) {
	p := NewPipeline(testLogger(), NewSignatureScanner(nil))

	result := p.Scan(context.Background(), "ok.txt", []byte("content"))
	assert.Equal(t, SourceSignature, result.Source)
}
