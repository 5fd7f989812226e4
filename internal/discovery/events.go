package discovery

import (
	"context"
	"time"

	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Event topics published by the discovery module.
const (
	TopicDeviceDiscovered = "discovery.device.discovered"
	TopicDeviceUpdated    = "discovery.device.updated"
	TopicDeviceOffline    = "discovery.device.offline"
	TopicSweepStarted     = "discovery.sweep.started"
	TopicSweepCompleted   = "discovery.sweep.completed"
	TopicNeighborSeen     = "discovery.neighbor.seen"
)

// DeviceEvent wraps a device with the sweep that saw it. SweepID is empty
// for devices learned passively over MNDP.
type DeviceEvent struct {
	SweepID string                   `json:"sweep_id,omitempty"`
	Device  *models.DiscoveredDevice `json:"device"`
}

// DeviceOfflineEvent is the payload for TopicDeviceOffline.
type DeviceOfflineEvent struct {
	DeviceIDs []string `json:"device_ids"`
	Reason    string   `json:"reason"` // "sweep" or "stale"
}

// emitter publishes discovery events when a bus is available.
type emitter struct {
	bus plugin.EventBus
}

func (e emitter) publish(ctx context.Context, topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "discovery",
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
