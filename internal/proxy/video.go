package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/danielcherubini/elegoo-printercore/pkg/worker"
)

// upstreamGracePeriod is how long the upstream MJPEG connection is kept
// open after the last downstream disconnects, in case a new one attaches
// immediately (e.g. a client reconnecting).
const upstreamGracePeriod = 5 * time.Second

const (
	fanoutWorkers  = 4
	fanoutQueueLen = 256
)

// fanoutJob is one frame destined for one attached client, submitted to the
// shared worker pool so a slow client's push never delays the others.
type fanoutJob struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *videoClient
	frame  []byte
}

// UpstreamDialer opens the single upstream MJPEG connection, returning the
// response body (an open multipart/x-mixed-replace stream) and its
// boundary string, parsed from the upstream's own Content-Type header —
// never hard-coded, since firmware varies it across models.
type UpstreamDialer func(ctx context.Context) (body io.ReadCloser, boundary string, err error)

// VideoServer fans one upstream MJPEG stream out to any number of HTTP
// downstreams, opening the upstream connection at most once regardless of
// downstream count.
type VideoServer struct {
	dial   UpstreamDialer
	logger *slog.Logger

	mu         sync.Mutex
	boundary   string
	clients    map[string]*videoClient
	cancelPump context.CancelFunc
	graceTimer *time.Timer

	fanout *worker.Pool[fanoutJob]
}

type videoClient struct {
	out *outbox
}

// NewVideoServer builds a VideoServer around an UpstreamDialer. The fan-out
// pool is started immediately and lives for the lifetime of the server:
// pushing a frame to N attached clients happens concurrently across its
// workers instead of blocking the single upstream reader on the slowest one.
func NewVideoServer(dial UpstreamDialer, logger *slog.Logger) *VideoServer {
	if logger == nil {
		logger = slog.Default()
	}
	fanout := worker.NewPool(fanoutWorkers, fanoutQueueLen, func(_ context.Context, job fanoutJob) error {
		defer job.cancel()
		return job.client.out.push(job.ctx, job.frame)
	})
	_ = fanout.Start(context.Background())

	return &VideoServer{
		dial:    dial,
		logger:  logger.With("component", "proxy.video"),
		clients: map[string]*videoClient{},
		fanout:  fanout,
	}
}

// Close stops the fan-out pool, draining any in-flight pushes.
func (v *VideoServer) Close() error {
	return v.fanout.Stop(slowConsumerTimeout)
}

// ServeHTTP attaches one downstream to the shared MJPEG stream, starting
// the upstream pump if none is running or held open by the grace period.
func (v *VideoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out, err := newVideoOutbox()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	clientID := fmt.Sprintf("%p", out)
	v.attach(clientID, out)
	defer v.detach(clientID)

	boundary := v.ensureBoundary()
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", boundary))
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ctx := r.Context()
	_ = out.run(ctx, func(frame []byte) error {
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
}

func (v *VideoServer) attach(id string, out *outbox) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.graceTimer != nil {
		v.graceTimer.Stop()
		v.graceTimer = nil
	}

	v.clients[id] = &videoClient{out: out}

	// A pump still held open by the grace period is reused rather than
	// dialing a second upstream connection.
	if v.cancelPump == nil {
		ctx, cancel := context.WithCancel(context.Background())
		v.cancelPump = cancel
		go v.pump(ctx)
	}
}

func (v *VideoServer) detach(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.clients[id]; ok {
		c.out.close()
		delete(v.clients, id)
	}

	if len(v.clients) == 0 && v.cancelPump != nil {
		v.graceTimer = time.AfterFunc(upstreamGracePeriod, func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if len(v.clients) == 0 && v.cancelPump != nil {
				v.cancelPump()
				v.cancelPump = nil
			}
		})
	}
}

func (v *VideoServer) ensureBoundary() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.boundary
}

// pump opens the single upstream connection and fans its frames out to
// every attached client until ctx is canceled (no downstream left) or the
// upstream connection fails.
func (v *VideoServer) pump(ctx context.Context) {
	body, boundary, err := v.dial(ctx)
	if err != nil {
		v.logger.Warn("upstream MJPEG dial failed", "error", err)
		return
	}
	defer body.Close()

	v.mu.Lock()
	v.boundary = boundary
	v.mu.Unlock()

	reader := newMJPEGReader(body, boundary)
	for {
		frame, err := reader.nextFrame()
		if err != nil {
			if err != io.EOF {
				v.logger.Warn("upstream MJPEG read failed", "error", err)
			}
			return
		}

		v.mu.Lock()
		targets := make([]*videoClient, 0, len(v.clients))
		for _, c := range v.clients {
			targets = append(targets, c)
		}
		v.mu.Unlock()

		for _, c := range targets {
			pushCtx, cancel := context.WithTimeout(ctx, slowConsumerTimeout)
			if err := v.fanout.Submit(fanoutJob{ctx: pushCtx, cancel: cancel, client: c, frame: frame}); err != nil {
				cancel()
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// mjpegReader splits a multipart/x-mixed-replace body into whole frames
// (boundary line + headers + JPEG bytes), re-emitting each exactly as read
// from upstream so the boundary string downstream sees always matches what
// was advertised in ServeHTTP's Content-Type header.
type mjpegReader struct {
	r        *bufio.Reader
	boundary string
}

func newMJPEGReader(body io.Reader, boundary string) *mjpegReader {
	return &mjpegReader{r: bufio.NewReaderSize(body, 64*1024), boundary: boundary}
}

// nextFrame reads up to and including the next boundary delimiter,
// returning everything read (so downstream receives byte-identical parts).
func (m *mjpegReader) nextFrame() ([]byte, error) {
	delim := []byte("--" + m.boundary)
	var buf []byte
	for {
		line, err := m.r.ReadBytes('\n')
		buf = append(buf, line...)
		if err != nil {
			return nil, err
		}
		// A chunk holding only the delimiter (the stream's leading boundary)
		// is not a frame yet; keep reading until a part precedes it.
		if len(buf) > len(delim)+2 && containsDelimTail(buf, delim) {
			return buf, nil
		}
	}
}

func containsDelimTail(buf, delim []byte) bool {
	trimmed := buf
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) < len(delim) {
		return false
	}
	return string(trimmed[len(trimmed)-len(delim):]) == string(delim)
}

// ParseBoundary extracts the boundary parameter from an upstream
// Content-Type header, the way mime.ParseMediaType does for any multipart
// media type.
func ParseBoundary(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	return params["boundary"], nil
}
