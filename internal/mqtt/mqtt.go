// Package mqtt relays discovery and snapshot events to an MQTT broker.
//
// Every bus event is published under <prefix>/events/<topic with dots as
// slashes>. Device events also maintain retained per-device topics:
//
//	<prefix>/devices/<id>/state   device JSON
//	<prefix>/devices/<id>/status  online | offline
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/discovery"
	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// client is the part of pahomqtt.Client the module uses.
type client interface {
	Connect() pahomqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Module implements the MQTT publisher plugin.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	bus       plugin.EventBus
	newClient func(Config) client

	mu     sync.RWMutex
	client client
	unsubs []func()
}

// New creates an MQTT publisher plugin instance.
func New() *Module {
	return &Module{newClient: pahoClient}
}

func pahoClient(cfg Config) client {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return pahomqtt.NewClient(opts)
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "mqtt",
		Version:      "1.0.0",
		Description:  "Publishes discovery events to an MQTT broker",
		Dependencies: []string{"discovery"},
		Roles:        []string{"integration"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = LoadConfig(deps.Config)

	if m.cfg.BrokerURL == "" {
		m.logger.Info("mqtt broker URL not configured, publishing disabled")
		return nil
	}
	m.logger.Info("mqtt module initialized",
		zap.String("broker_url", m.cfg.BrokerURL),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("topic_prefix", m.cfg.TopicPrefix),
		zap.Uint8("qos", m.cfg.QoS),
	)
	return nil
}

// Start connects to the broker and subscribes to the event bus. A broker
// that is down at startup is retried in the background.
func (m *Module) Start(_ context.Context) error {
	if m.cfg.BrokerURL == "" || m.bus == nil {
		return nil
	}

	c := m.newClient(m.cfg)
	token := c.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connection timed out, will keep retrying")
	case token.Error() != nil:
		m.logger.Warn("mqtt connection failed, will keep retrying", zap.Error(token.Error()))
	default:
		m.logger.Info("mqtt connected to broker", zap.String("broker_url", m.cfg.BrokerURL))
	}

	m.mu.Lock()
	m.client = c
	m.unsubs = append(m.unsubs,
		m.bus.Subscribe("discovery.*", m.publishEvent),
		m.bus.Subscribe("snapshot.*", m.publishEvent),
	)
	m.mu.Unlock()
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
		m.logger.Info("mqtt disconnected")
	}
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.BrokerURL == "" {
		return plugin.HealthStatus{Status: "healthy", Message: "no broker configured"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{Status: "degraded", Message: "not connected to MQTT broker"}
	}
	return plugin.HealthStatus{Status: "healthy", Message: "connected to " + m.cfg.BrokerURL}
}

// eventTopic maps a bus topic to its MQTT event stream topic.
func (m *Module) eventTopic(busTopic string) string {
	return m.cfg.TopicPrefix + "/events/" + strings.ReplaceAll(busTopic, ".", "/")
}

func (m *Module) deviceTopic(id, leaf string) string {
	return m.cfg.TopicPrefix + "/devices/" + id + "/" + leaf
}

func (m *Module) publishEvent(_ context.Context, event plugin.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		m.logger.Warn("failed to marshal MQTT payload", zap.String("topic", event.Topic), zap.Error(err))
		return
	}
	m.publish(m.eventTopic(event.Topic), m.cfg.Retain, payload)

	switch p := event.Payload.(type) {
	case discovery.DeviceEvent:
		if p.Device != nil {
			m.publishDevice(p.Device)
		}
	case discovery.DeviceOfflineEvent:
		for _, id := range p.DeviceIDs {
			m.publish(m.deviceTopic(id, "status"), true, []byte(string(models.DeviceStatusOffline)))
		}
	}
}

// publishDevice refreshes the retained state and status of one device.
func (m *Module) publishDevice(d *models.DiscoveredDevice) {
	state, err := json.Marshal(d)
	if err != nil {
		return
	}
	m.publish(m.deviceTopic(d.ID, "state"), true, state)
	m.publish(m.deviceTopic(d.ID, "status"), true, []byte(string(d.Status)))
}

// publish sends one message and waits for the broker acknowledgement.
// Caller holds m.mu.
func (m *Module) publish(topic string, retained bool, payload []byte) {
	token := m.client.Publish(topic, m.cfg.QoS, retained, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt publish timed out", zap.String("mqtt_topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt publish failed", zap.String("mqtt_topic", topic), zap.Error(err))
		return
	}
	m.logger.Debug("mqtt published", zap.String("mqtt_topic", topic), zap.Bool("retained", retained))
}
