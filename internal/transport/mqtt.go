package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/metric"
)

// MqttMode selects which side of the CC2 "inverted broker" topology this
// process plays.
type MqttMode int

const (
	// ModePrinterBroker connects as a client to the printer's own broker
	// (CC2: <printerIp>:1883). This is the normal CC2 mode.
	ModePrinterBroker MqttMode = iota
	// ModeHostBroker runs an embedded broker on the host for the printer to
	// connect to. Used for legacy (CC1-and-older) printers. Nothing in this
	// module sends the M66666 directive that points a printer at that broker.
	ModeHostBroker
)

// MqttTopics names the five CC2 topics a client needs (see spec §6.2).
type MqttTopics struct {
	Register         string // publish: elegoo/<sn>/api_register
	RegisterResponse string // subscribe: elegoo/<sn>/<requestId>/register_response
	Request          string // publish: elegoo/<sn>/<clientId>/api_request
	Response         string // subscribe: elegoo/<sn>/<clientId>/api_response
	Status           string // subscribe: elegoo/<sn>/api_status
}

// TopicsForSerial builds the standard CC2 topic set for a printer serial and
// client id.
func TopicsForSerial(serial, clientID, registerRequestID string) MqttTopics {
	return MqttTopics{
		Register:         fmt.Sprintf("elegoo/%s/api_register", serial),
		RegisterResponse: fmt.Sprintf("elegoo/%s/%s/register_response", serial, registerRequestID),
		Request:          fmt.Sprintf("elegoo/%s/%s/api_request", serial, clientID),
		Response:         fmt.Sprintf("elegoo/%s/%s/api_response", serial, clientID),
		Status:           fmt.Sprintf("elegoo/%s/api_status", serial),
	}
}

// NewClientID builds the CC2-mandated client id: exactly 10 chars,
// "0cli" + last 5 hex chars of millis-since-epoch + 1-3 random hex chars,
// truncated to 10. The legacy "1_PC_<n>" form is rejected by the printer and
// must never be used here.
func NewClientID() string {
	millis := time.Now().UnixMilli()
	millisHex := fmt.Sprintf("%x", millis)
	if len(millisHex) > 5 {
		millisHex = millisHex[len(millisHex)-5:]
	}
	randBytes := make([]byte, 2)
	_, _ = rand.Read(randBytes)
	id := "0cli" + millisHex + hex.EncodeToString(randBytes)
	if len(id) > 10 {
		id = id[:10]
	}
	return id
}

// NewRegisterRequestID builds the CC2 registration request id: 16 random hex
// chars followed by the hex of the current millis.
func NewRegisterRequestID() string {
	randBytes := make([]byte, 8)
	_, _ = rand.Read(randBytes)
	return hex.EncodeToString(randBytes) + fmt.Sprintf("%x", time.Now().UnixMilli())
}

// MqttTransport implements Transport over MQTT in either printer-broker or
// host-broker mode. Publish/subscribe topics are passed in by the caller
// (internal/session), since topic routing depends on the registered client
// id, which the transport itself does not assign.
type MqttTransport struct {
	mode       MqttMode
	brokerURL  string
	clientID   string
	username   string
	password   string
	subscribe  []string
	publishTo  string
	logger     *slog.Logger
	backoff    backoffConfig

	mu      sync.Mutex
	client  mqtt.Client
	closed  bool
	broker  *embeddedBroker // non-nil only in ModeHostBroker
	metrics *metric.Metrics

	recv   chan Frame
	states chan State
}

// SetMetrics attaches a Metrics recorder. Optional; nil by default means
// transport events aren't recorded anywhere.
func (t *MqttTransport) SetMetrics(m *metric.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// MqttTransportConfig configures a MqttTransport.
type MqttTransportConfig struct {
	Mode      MqttMode
	PrinterIP string // ModePrinterBroker: <printerIp>:1883
	HostPort  int    // ModeHostBroker: local port the embedded broker listens on
	ClientID  string
	Username  string
	Password  string
	// Subscribe lists the topics to subscribe to once connected (response,
	// status, and register-response topics). Frames arriving on any of them
	// are delivered on Receive in their raw published-payload form.
	Subscribe []string
	// PublishTopic is the default topic Send publishes to (the client's
	// api_request topic, or api_register during the handshake).
	PublishTopic string
}

// NewMqttTransport builds an MqttTransport. In ModePrinterBroker, PrinterIP
// must be set; in ModeHostBroker, HostPort must be set and an embedded
// broker is started on Open.
func NewMqttTransport(cfg MqttTransportConfig, logger *slog.Logger) *MqttTransport {
	if logger == nil {
		logger = slog.Default()
	}
	broker := fmt.Sprintf("tcp://%s:1883", cfg.PrinterIP)
	if cfg.Mode == ModeHostBroker {
		broker = fmt.Sprintf("tcp://127.0.0.1:%d", cfg.HostPort)
	}
	return &MqttTransport{
		mode:      cfg.Mode,
		brokerURL: broker,
		clientID:  cfg.ClientID,
		username:  cfg.Username,
		password:  cfg.Password,
		subscribe: cfg.Subscribe,
		publishTo: cfg.PublishTopic,
		logger:    logger.With("component", "transport.mqtt"),
		backoff:   defaultBackoff(),
		recv:      make(chan Frame, 64),
		states:    make(chan State, 8),
	}
}

func (t *MqttTransport) Open(ctx context.Context) error {
	if t.mode == ModeHostBroker {
		b, err := startEmbeddedBroker(t.logger, t.hostPort())
		if err != nil {
			return errors.WrapFatal(err, "MqttTransport", "Open", "start embedded broker")
		}
		t.mu.Lock()
		t.broker = b
		t.mu.Unlock()
	}

	t.setState(StateConnecting)

	opts := mqtt.NewClientOptions().
		AddBroker(t.brokerURL).
		SetClientID(t.clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			t.setState(StateConnected)
			t.subscribeAll(c)
			if t.metrics != nil {
				t.metrics.RecordTransportConnected(true)
			}
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			t.logger.Warn("mqtt connection lost", "error", err)
			t.setState(StateDisconnected)
			if t.metrics != nil {
				t.metrics.RecordTransportConnected(false)
			}
		})
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return errors.WrapTransient(errors.ErrRequestTimeout, "MqttTransport", "Open", "connect")
	}
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "MqttTransport", "Open", "connect")
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *MqttTransport) hostPort() int {
	// brokerURL is tcp://127.0.0.1:<port> in ModeHostBroker.
	var port int
	_, _ = fmt.Sscanf(t.brokerURL, "tcp://127.0.0.1:%d", &port)
	return port
}

func (t *MqttTransport) subscribeAll(c mqtt.Client) {
	for _, topic := range t.subscribe {
		topic := topic
		tok := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			if t.metrics != nil {
				t.metrics.RecordFrameReceived(topic, "mqtt")
			}
			select {
			case t.recv <- Frame(msg.Payload()):
			default:
				t.logger.Warn("receive buffer full, dropping frame", "topic", topic)
			}
		})
		if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
			t.logger.Warn("mqtt subscribe failed", "topic", topic, "error", tok.Error())
		}
	}
}

func (t *MqttTransport) setState(s State) {
	select {
	case t.states <- s:
	default:
	}
}

// SetPublishTopic changes the topic Send publishes to. Used by a Session
// once CC2 registration succeeds, to switch from api_register to the
// registered client's api_request topic.
func (t *MqttTransport) SetPublishTopic(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishTo = topic
}

// Subscribe adds a topic subscription at runtime, used once a Session
// learns its register_response topic (which depends on a request id
// generated only at registration time).
func (t *MqttTransport) Subscribe(topic string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.ErrTransportReset
	}
	tok := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case t.recv <- Frame(msg.Payload()):
		default:
			t.logger.Warn("receive buffer full, dropping frame", "topic", topic)
		}
	})
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		return tok.Error()
	}
	return nil
}

func (t *MqttTransport) Send(ctx context.Context, frame Frame) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.ErrTransportReset
	}
	token := client.Publish(t.publishTo, 1, false, []byte(frame))
	select {
	case <-waitToken(token):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		if t.metrics != nil {
			t.metrics.RecordError(t.publishTo, "send")
		}
		return err
	}
	if t.metrics != nil {
		t.metrics.RecordFrameSent(t.publishTo, "mqtt")
	}
	return nil
}

// PublishTo publishes a frame to an explicit topic, used during the
// registration handshake before the session's steady-state publish topic
// is known to the transport.
func (t *MqttTransport) PublishTo(ctx context.Context, topic string, frame Frame) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.ErrTransportReset
	}
	token := client.Publish(topic, 1, false, []byte(frame))
	select {
	case <-waitToken(token):
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}

func waitToken(token mqtt.Token) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	return done
}

func (t *MqttTransport) Receive() <-chan Frame      { return t.recv }
func (t *MqttTransport) StateChanges() <-chan State { return t.states }

func (t *MqttTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.client != nil {
		t.client.Disconnect(250)
	}
	if t.broker != nil {
		if err := t.broker.stop(); err != nil {
			return err
		}
	}
	close(t.recv)
	return nil
}
