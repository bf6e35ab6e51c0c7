package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoundary_ExtractsFromContentType(t *testing.T) {
	boundary, err := ParseBoundary("multipart/x-mixed-replace; boundary=frame")
	require.NoError(t, err)
	assert.Equal(t, "frame", boundary)
}

func TestParseBoundary_RejectsMalformedHeader(t *testing.T) {
	_, err := ParseBoundary("not a content type; =;;")
	assert.Error(t, err)
}

func TestMJPEGReader_SplitsOnBoundary(t *testing.T) {
	body := "--frame\r\n" +
		"Content-Type: image/jpeg\r\n\r\n" +
		"FAKEJPEGDATA1\r\n" +
		"--frame\r\n" +
		"Content-Type: image/jpeg\r\n\r\n" +
		"FAKEJPEGDATA2\r\n" +
		"--frame\r\n"

	r := newMJPEGReader(bytes.NewReader([]byte(body)), "frame")

	first, err := r.nextFrame()
	require.NoError(t, err)
	assert.Contains(t, string(first), "FAKEJPEGDATA1")

	second, err := r.nextFrame()
	require.NoError(t, err)
	assert.Contains(t, string(second), "FAKEJPEGDATA2")
}

func TestVideoServer_DialedOnceForMultipleDownstreams(t *testing.T) {
	dialCount := 0
	dial := func(ctx context.Context) (io.ReadCloser, string, error) {
		dialCount++
		body := "--frame\r\n" +
			"Content-Type: image/jpeg\r\n\r\n" +
			"FRAME1\r\n" +
			"--frame\r\n"
		return io.NopCloser(bytes.NewReader([]byte(body))), "frame", nil
	}

	vs := NewVideoServer(dial, nil)
	srv := httptest.NewServer(http.HandlerFunc(vs.ServeHTTP))
	defer srv.Close()

	fetch := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			buf := make([]byte, 64)
			_, _ = resp.Body.Read(buf)
			resp.Body.Close()
		}
	}

	fetch()
	fetch()

	assert.LessOrEqual(t, dialCount, 1, "upstream must be dialed at most once regardless of downstream count")
}

func TestVideoServer_GracePeriodKeepsUpstreamAliveBriefly(t *testing.T) {
	vs := NewVideoServer(func(ctx context.Context) (io.ReadCloser, string, error) {
		return io.NopCloser(bytes.NewReader(nil)), "frame", nil
	}, nil)

	out, err := newVideoOutbox()
	require.NoError(t, err)
	vs.attach("client-1", out)
	require.NotNil(t, vs.cancelPump)

	vs.detach("client-1")

	vs.mu.Lock()
	timerSet := vs.graceTimer != nil
	pumpStillSet := vs.cancelPump != nil
	vs.mu.Unlock()

	assert.True(t, timerSet, "detaching the last client should start a grace timer, not cancel immediately")
	assert.True(t, pumpStillSet, "pump should not be canceled until the grace period elapses")
}
