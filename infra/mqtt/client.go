// Package mqtt implements the "mqtt" brand adapter: controllers that take
// commands over an MQTT broker and acknowledge them on an ack topic.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/core/monitoring"
	"github.com/bselee/enviroflow/infra/logger"
)

// Brand is the controller brand served by this adapter.
const Brand model.Brand = "mqtt"

var (
	// ErrAckTimeout is returned when no acknowledgment arrives in time.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrUnknownSession is returned for a controller id not opened by Connect.
	ErrUnknownSession = errors.New("unknown mqtt session")
	// ErrRejected is returned when the device acknowledges with success=false.
	ErrRejected = errors.New("command rejected by device")
)

// Credential keys read by Connect.
const (
	CredDeviceID = "device_id"
	CredBroker   = "broker"
	CredUsername = "username"
	CredPassword = "password"
)

// Config defines the connection parameters shared by every session.
type Config struct {
	Broker           string          `json:"broker"`
	ClientIDPrefix   string          `json:"client_id_prefix"`
	TopicPrefix      string          `json:"topic_prefix"`
	UseTLS           bool            `json:"use_tls"`
	ClientCert       string          `json:"client_cert"`
	ClientKey        string          `json:"client_key"`
	CABundle         string          `json:"ca_bundle"`
	QoS              map[string]byte `json:"qos"`
	ConnectTimeoutMS int             `json:"connect_timeout_ms"`
	// AckTimeoutMS enables waiting for device acknowledgments when positive.
	AckTimeoutMS int         `json:"ack_timeout_ms"`
	TLSConfig    *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "enviroflow"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "enviroflow"
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 5000
	}
}

// Validate checks option consistency.
func (c Config) Validate() error {
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt: tls requires client_cert, client_key and ca_bundle")
	}
	if c.AckTimeoutMS < 0 {
		return fmt.Errorf("mqtt: ack_timeout_ms must not be negative")
	}
	return nil
}

func (c Config) qos(kind string) byte {
	if q, ok := c.QoS[kind]; ok {
		return q
	}
	return 0
}

// CommandTopic is where commands for a device port are published.
func (c Config) CommandTopic(deviceID string, port int) string {
	return fmt.Sprintf("%s/%s/port/%d/command", c.TopicPrefix, deviceID, port)
}

// AckTopic is where a device acknowledges commands.
func (c Config) AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/ack", c.TopicPrefix, deviceID)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// ack is the payload devices publish on their ack topic.
type ack struct {
	CommandID   string   `json:"command_id"`
	Success     *bool    `json:"success,omitempty"`
	ActualValue *float64 `json:"actual_value,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type session struct {
	cli      pahoClient
	deviceID string

	mu       sync.Mutex
	ackChans map[string]chan ack
}

// Adapter implements adapter.Adapter over MQTT. One Adapter may hold several
// sessions; each Connect opens its own broker connection.
type Adapter struct {
	cfg    Config
	logger logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an MQTT adapter.
func New(cfg Config) (*Adapter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:      cfg,
		logger:   logger.New("mqtt_adapter"),
		sessions: make(map[string]*session),
		now:      time.Now,
	}, nil
}

// Connect opens a broker connection for the device named in creds and
// subscribes to its ack topic.
func (a *Adapter) Connect(ctx context.Context, creds credentials.Credentials) (string, error) {
	deviceID := creds[CredDeviceID]
	if deviceID == "" {
		return "", fmt.Errorf("mqtt: credentials missing %s", CredDeviceID)
	}
	cfg := a.cfg
	if b := creds[CredBroker]; b != "" {
		cfg.Broker = b
	}
	if cfg.Broker == "" {
		return "", fmt.Errorf("mqtt: no broker configured for device %s", deviceID)
	}
	opts, err := NewClientOptions(cfg, creds[CredUsername], creds[CredPassword])
	if err != nil {
		return "", err
	}
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.NewString()[:8]))
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond)

	s := &session{deviceID: deviceID, ackChans: make(map[string]chan ack)}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		a.logger.Errorf("connection lost for %s: %v", deviceID, err)
	}
	c := newMQTTClient(opts)
	if err := waitToken(ctx, c.Connect(), time.Duration(cfg.ConnectTimeoutMS)*time.Millisecond); err != nil {
		// paho keeps connecting in the background after a timeout or cancel.
		c.Disconnect(0)
		return "", fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	s.cli = c

	if a.cfg.AckTimeoutMS > 0 {
		tok := c.Subscribe(a.cfg.AckTopic(deviceID), a.cfg.qos("ack"), s.onAck(a.logger))
		if err := waitToken(ctx, tok, time.Duration(cfg.ConnectTimeoutMS)*time.Millisecond); err != nil {
			c.Disconnect(250)
			return "", fmt.Errorf("mqtt subscribe ack: %w", err)
		}
	}

	id := uuid.NewString()
	a.mu.Lock()
	a.sessions[id] = s
	a.mu.Unlock()
	a.logger.Infof("MQTT connected to %s for device %s", cfg.Broker, deviceID)
	return id, nil
}

// ControlDevice publishes cmd to the device port. With acknowledgments
// enabled it waits for the device response and returns its actual value.
func (a *Adapter) ControlDevice(ctx context.Context, controllerID string, port int, cmd model.Command) (adapter.ControlResult, error) {
	s, err := a.session(controllerID)
	if err != nil {
		return adapter.ControlResult{}, err
	}
	cmdID := uuid.NewString()
	order := struct {
		CommandID string   `json:"command_id"`
		Port      int      `json:"port"`
		Type      string   `json:"type"`
		Value     *float64 `json:"value,omitempty"`
		Timestamp int64    `json:"timestamp"`
	}{
		CommandID: cmdID,
		Port:      port,
		Type:      string(cmd.Type),
		Value:     cmd.Value,
		Timestamp: a.now().UnixMilli(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return adapter.ControlResult{}, err
	}

	var ch chan ack
	if a.cfg.AckTimeoutMS > 0 {
		ch = make(chan ack, 1)
		s.mu.Lock()
		s.ackChans[cmdID] = ch
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.ackChans, cmdID)
			s.mu.Unlock()
		}()
	}

	topic := a.cfg.CommandTopic(s.deviceID, port)
	tok := s.cli.Publish(topic, a.cfg.qos("command"), false, payload)
	if err := waitToken(ctx, tok, time.Duration(a.cfg.ConnectTimeoutMS)*time.Millisecond); err != nil {
		monitoring.CaptureException(err, map[string]string{"device_id": s.deviceID, "module": "mqtt"})
		return adapter.ControlResult{}, fmt.Errorf("publish %s: %w", topic, err)
	}
	a.logger.Debugf("sent command %s to %s", cmdID, topic)
	if ch == nil {
		return adapter.ControlResult{}, nil
	}

	timer := time.NewTimer(time.Duration(a.cfg.AckTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case m := <-ch:
		if m.Success != nil && !*m.Success {
			if m.Error != "" {
				return adapter.ControlResult{}, fmt.Errorf("%w: %s", ErrRejected, m.Error)
			}
			return adapter.ControlResult{}, ErrRejected
		}
		return adapter.ControlResult{ActualValue: m.ActualValue}, nil
	case <-timer.C:
		return adapter.ControlResult{}, ErrAckTimeout
	case <-ctx.Done():
		return adapter.ControlResult{}, ctx.Err()
	}
}

// Disconnect closes the session broker connection. Unknown ids are ignored.
func (a *Adapter) Disconnect(_ context.Context, controllerID string) error {
	a.mu.Lock()
	s, ok := a.sessions[controllerID]
	delete(a.sessions, controllerID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
	return nil
}

// Sessions returns the number of open sessions.
func (a *Adapter) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *Adapter) session(id string) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

func (s *session) onAck(log logger.Logger) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var m ack
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Errorf("failed to decode ack: %v", err)
			return
		}
		s.mu.Lock()
		ch, ok := s.ackChans[m.CommandID]
		s.mu.Unlock()
		if !ok {
			return
		}
		select {
		case ch <- m:
		default:
		}
		log.Debugf("received ack %s", m.CommandID)
	}
}

// waitToken waits for tok, the timeout, or ctx, whichever comes first.
func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewClientOptions builds mqtt client options from Config and session credentials.
func NewClientOptions(cfg Config, username, password string) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
