package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/danielcherubini/elegoo-printercore/metric"
)

// Server runs the two local endpoints a configured printer client can be
// pointed at instead of the real printer: a WebSocket control plane and an
// HTTP MJPEG video plane, both backed by one upstream printer connection.
type Server struct {
	Control *ControlServer
	Video   *VideoServer

	wsPort    int
	videoPort int
	logger    *slog.Logger

	wsSrv    *http.Server
	videoSrv *http.Server

	group *errgroup.Group
}

// Options configures a Server.
type Options struct {
	WSPort    int
	VideoPort int
	Send      UpstreamSender
	Dial      UpstreamDialer
	Metrics   *metric.Metrics
}

// New builds a Server. Start must be called to begin listening.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	control := NewControlServer(opts.Send, logger)
	if opts.Metrics != nil {
		control.SetMetrics(opts.Metrics)
	}
	return &Server{
		Control:   control,
		Video:     NewVideoServer(opts.Dial, logger),
		wsPort:    opts.WSPort,
		videoPort: opts.VideoPort,
		logger:    logger.With("component", "proxy"),
	}
}

// Start launches both listeners and returns without waiting for them to
// bind; the two planes run independently under an errgroup.Group, so a
// failure in one (e.g. the video listener's port is already taken) does not
// stop the other. Call Wait to block until both planes exit and get the
// first error either reported, or Stop to shut both down deliberately.
func (s *Server) Start(ctx context.Context) error {
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/websocket", s.Control.ServeHTTP)
	s.wsSrv = &http.Server{Addr: fmt.Sprintf(":%d", s.wsPort), Handler: wsMux}

	videoMux := http.NewServeMux()
	videoMux.HandleFunc("/", s.Video.ServeHTTP)
	s.videoSrv = &http.Server{Addr: fmt.Sprintf(":%d", s.videoPort), Handler: videoMux}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control plane server stopped", "error", err)
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := s.videoSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("video plane server stopped", "error", err)
			return err
		}
		return nil
	})
	s.group = group

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	return nil
}

// Wait blocks until both the control and video plane listeners have exited
// (normally following Stop), returning the first non-shutdown error either
// reported.
func (s *Server) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Stop gracefully shuts both servers down.
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error
	if s.wsSrv != nil {
		if err := s.wsSrv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.videoSrv != nil {
		if err := s.videoSrv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.Video.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
