package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
)

const (
	legacyPort        = 3000
	legacyPayload     = "M99999"
	cc2Port           = 52700
	directedProbeTTL  = 3 * time.Second
	broadcastProbeTTL = 10 * time.Second

	// rebroadcastInterval governs how often a probe re-sends its discovery
	// packet while waiting out a long timeout, so a slow-to-answer printer
	// on a lossy network still gets a few chances to be heard from. Limited
	// through a rate.Limiter rather than a bare ticker so the behavior stays
	// correct if a future caller drives probeLegacy/probeCC2 concurrently
	// from multiple goroutines sharing one socket.
	rebroadcastInterval = 2 * time.Second
)

// Discoverer probes the local network for Elegoo printers.
type Discoverer struct {
	logger *slog.Logger
}

// NewDiscoverer creates a Discoverer. A nil logger falls back to slog's
// default logger.
func NewDiscoverer(logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{logger: logger.With("component", "discovery")}
}

// Discover probes both SDCP discovery dialects concurrently and returns
// every distinct responder (deduplicated by serial) found before timeout.
// A networkHint, if non-empty, is used as the broadcast address instead of
// the default 255.255.255.255; this supports directed probes to known
// subnets. Discover never errors on partial results: a probe that finds
// nothing simply contributes nothing.
func (d *Discoverer) Discover(ctx context.Context, timeout time.Duration, networkHint string) ([]Identity, error) {
	if timeout <= 0 {
		timeout = broadcastProbeTTL
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	broadcastAddr := "255.255.255.255"
	if networkHint != "" {
		broadcastAddr = networkHint
	}

	var mu sync.Mutex
	found := map[string]Identity{}

	add := func(id Identity) {
		mu.Lock()
		defer mu.Unlock()
		if id.Serial == "" {
			return
		}
		if _, ok := found[id.Serial]; !ok {
			found[id.Serial] = id
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		d.probeLegacy(gctx, broadcastAddr, add)
		return nil
	})
	group.Go(func() error {
		d.probeCC2(gctx, broadcastAddr, add)
		return nil
	})
	// Errors from the probes themselves are logged and swallowed: Discover
	// always returns whatever was found, never a hard failure.
	_ = group.Wait()

	out := make([]Identity, 0, len(found))
	for _, id := range found {
		out = append(out, id)
	}

	if len(out) == 0 {
		return nil, errors.ErrDiscoveryEmpty
	}
	return out, nil
}

func (d *Discoverer) probeLegacy(ctx context.Context, broadcastAddr string, add func(Identity)) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		d.logger.Warn("legacy discovery socket failed", "error", err)
		return
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(broadcastAddr), Port: legacyPort}
	if _, err := conn.WriteToUDP([]byte(legacyPayload), dst); err != nil {
		d.logger.Warn("legacy discovery broadcast failed", "error", err)
		return
	}

	limiter := rate.NewLimiter(rate.Every(rebroadcastInterval), 1)
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(directedProbeTTL))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if limiter.Allow() {
				if _, werr := conn.WriteToUDP([]byte(legacyPayload), dst); werr != nil {
					d.logger.Warn("legacy discovery rebroadcast failed", "error", werr)
				}
			}
			continue
		}
		id, ok := parseLegacyReply(buf[:n], src.IP.String())
		if !ok {
			continue
		}
		add(id)
	}
}

func (d *Discoverer) probeCC2(ctx context.Context, broadcastAddr string, add func(Identity)) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		d.logger.Warn("cc2 discovery socket failed", "error", err)
		return
	}
	defer conn.Close()

	payload, _ := json.Marshal(map[string]any{"id": 0, "method": 7000})
	dst := &net.UDPAddr{IP: net.ParseIP(broadcastAddr), Port: cc2Port}
	if _, err := conn.WriteToUDP(payload, dst); err != nil {
		d.logger.Warn("cc2 discovery broadcast failed", "error", err)
		return
	}

	limiter := rate.NewLimiter(rate.Every(rebroadcastInterval), 1)
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(directedProbeTTL))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if limiter.Allow() {
				if _, werr := conn.WriteToUDP(payload, dst); werr != nil {
					d.logger.Warn("cc2 discovery rebroadcast failed", "error", werr)
				}
			}
			continue
		}
		id, ok := parseCC2Reply(buf[:n], src.IP.String())
		if !ok {
			continue
		}
		add(id)
	}
}

type legacyReplyEnvelope struct {
	Data struct {
		Attributes struct {
			Name            string `json:"Name"`
			MachineName     string `json:"MachineName"`
			MainboardIP     string `json:"MainboardIP"`
			MainboardID     string `json:"MainboardID"`
			ProtocolVersion string `json:"ProtocolVersion"`
			FirmwareVersion string `json:"FirmwareVersion"`
		} `json:"Attributes"`
	} `json:"Data"`
}

func parseLegacyReply(data []byte, srcIP string) (Identity, bool) {
	var env legacyReplyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Identity{}, false
	}
	attrs := env.Data.Attributes
	if attrs.MainboardID == "" {
		return Identity{}, false
	}

	ip := attrs.MainboardIP
	if ip == "" {
		ip = srcIP
	}

	return Identity{
		Name:            attrs.Name,
		Model:           attrs.MachineName,
		Serial:          attrs.MainboardID,
		IPAddress:       ip,
		Firmware:        attrs.FirmwareVersion,
		ProtocolVersion: attrs.ProtocolVersion,
		ProtocolKind:    wire.DialectWebSocketSDCP,
		PrinterFamily:   inferFamily(attrs.MachineName),
		Capabilities:    map[string]struct{}{},
	}, true
}

type cc2ReplyEnvelope struct {
	ID     int `json:"id"`
	Result struct {
		HostName     string `json:"host_name"`
		MachineModel string `json:"machine_model"`
		SN           string `json:"sn"`
		TokenStatus  int    `json:"token_status"`
		LanStatus    int    `json:"lan_status"`
	} `json:"result"`
}

func parseCC2Reply(data []byte, srcIP string) (Identity, bool) {
	var env cc2ReplyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Identity{}, false
	}
	if env.Result.SN == "" {
		return Identity{}, false
	}

	caps := map[string]struct{}{}
	if env.Result.LanStatus == 0 {
		caps = withCapability(caps, "cloud-only")
	}

	return Identity{
		Name:          env.Result.HostName,
		Model:         env.Result.MachineModel,
		Serial:        env.Result.SN,
		IPAddress:     srcIP,
		ProtocolKind:  wire.DialectCC2MQTT,
		PrinterFamily: inferFamily(env.Result.MachineModel),
		Capabilities:  caps,
	}, true
}

// IsCloudOnly reports whether an Identity was discovered but only reachable
// in cloud/RTM mode, per lan_status==0. Opening a session against such an
// Identity must fail with errors.ErrUnsupportedMode.
func IsCloudOnly(id Identity) bool {
	return id.HasCapability("cloud-only")
}
