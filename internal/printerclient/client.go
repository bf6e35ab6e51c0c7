package printerclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/internal/discovery"
	"github.com/danielcherubini/elegoo-printercore/internal/session"
	"github.com/danielcherubini/elegoo-printercore/internal/transport"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
)

const defaultInvokeDeadline = 5 * time.Second

const (
	defaultMqttUsername = "elegoo"
	defaultMqttPassword = "123456"
)

// Options configures how a Client dials its transport, beyond what
// discovery.Identity already establishes.
type Options struct {
	AccessCode string // CC2 password substitute when TokenRequired is set
	TokenRequired bool
	// HostBrokerPort is used only for legacy (CC1-and-older) printers, as the
	// port of the embedded broker they connect to (no M66666 redirect is
	// sent); NewClient fails for a legacy-dialect identity when it is zero.
	HostBrokerPort int
}

// Client is the public façade composing an Identity and a Session. It starts
// no Coordinator, so no periodic status poll or automatic reconnect is driven
// from here; Subscribe returns the Session's own update stream.
type Client struct {
	identity discovery.Identity
	sess     *session.Session
	logger   *slog.Logger
}

// NewClient constructs a Client for a discovered Identity. It does not dial
// anything until Open is called.
func NewClient(identity discovery.Identity, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "printerclient", "printer", identity.Serial)

	tr, err := buildTransport(identity, opts, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		identity: identity,
		sess:     session.New(identity, tr, logger),
		logger:   logger,
	}, nil
}

func buildTransport(identity discovery.Identity, opts Options, logger *slog.Logger) (transport.Transport, error) {
	switch identity.ProtocolKind {
	case wire.DialectCC2MQTT:
		username, password := defaultMqttUsername, defaultMqttPassword
		if opts.TokenRequired {
			password = opts.AccessCode
		}
		return transport.NewMqttTransport(transport.MqttTransportConfig{
			Mode:      transport.ModePrinterBroker,
			PrinterIP: identity.IPAddress,
			ClientID:  transport.NewClientID(),
			Username:  username,
			Password:  password,
		}, logger), nil
	case wire.DialectLegacyMQTT:
		if opts.HostBrokerPort == 0 {
			return nil, errors.WrapFatal(errors.ErrProtocolError, "printerclient", "buildTransport", "legacy dialect requires HostBrokerPort")
		}
		return transport.NewMqttTransport(transport.MqttTransportConfig{
			Mode:     transport.ModeHostBroker,
			HostPort: opts.HostBrokerPort,
			ClientID: transport.NewClientID(),
		}, logger), nil
	default:
		return transport.NewWebSocketTransport(identity.IPAddress, logger), nil
	}
}

// Open dials the transport and brings the session to READY, performing CC2
// registration if applicable.
func (c *Client) Open(ctx context.Context) error {
	return c.sess.Open(ctx, session.Options{AccessCode: "", TokenSet: false})
}

// Snapshot returns an immutable copy of the current status tree.
func (c *Client) Snapshot() session.StatusSnapshot {
	return c.sess.Snapshot()
}

// Subscribe returns the latest-wins status-update stream.
func (c *Client) Subscribe() <-chan session.StatusSnapshot {
	return c.sess.Updates()
}

// Invoke sends a typed command and returns its result tree. deadline of
// zero uses the default (5s).
func (c *Client) Invoke(ctx context.Context, kind wire.CommandKind, params map[string]any, deadline time.Duration) (map[string]any, error) {
	if deadline <= 0 {
		deadline = defaultInvokeDeadline
	}
	params = applyParamClamps(kind, params)
	resp, err := c.sess.Invoke(ctx, kind, params, deadline)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// applyParamClamps clamps light/fan byte parameters to 0..255 before they
// reach the wire, per the printer's documented (if inconsistently enforced)
// valid range.
func applyParamClamps(kind wire.CommandKind, params map[string]any) map[string]any {
	if params == nil {
		return params
	}
	switch kind {
	case wire.CmdSetFanSpeed, wire.CmdSetLight:
		for _, key := range []string{"speed", "brightness"} {
			if v, ok := params[key].(int); ok {
				params[key] = wire.ClampByte(v)
			}
		}
	}
	return params
}

// ListFiles fetches the printer's file listing as typed records.
func (c *Client) ListFiles(ctx context.Context, storage StorageMedium) ([]PrintFileRecord, error) {
	result, err := c.Invoke(ctx, wire.CmdListFiles, map[string]any{"url": string(storage)}, 0)
	if err != nil {
		return nil, err
	}
	return recordsFromResult(result), nil
}

// FetchThumbnail returns a file's thumbnail bytes, preferring an inline
// value already present on a ListFiles record (passed in as inline) and
// falling back to a GET_FILE_DETAIL round trip only when absent.
func (c *Client) FetchThumbnail(ctx context.Context, filename string, inline []byte) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	result, err := c.Invoke(ctx, wire.CmdGetFileDetail, map[string]any{"filename": filename}, 0)
	if err != nil {
		return nil, err
	}
	if thumb, ok := decodeInlineThumbnail(result); ok {
		return thumb, nil
	}
	return nil, errors.ErrFileNotFound
}

// Close shuts the client's session down.
func (c *Client) Close() error {
	return c.sess.Close()
}
