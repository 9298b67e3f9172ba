// Package dispatch implements the four relay message kinds: emergency alert,
// safe alert, chat message and live location update.
package dispatch

import (
	"fmt"
	"time"

	"github.com/P-eter-shi/compow/internal/logger"
	"github.com/P-eter-shi/compow/internal/metrics"
	"github.com/P-eter-shi/compow/internal/presence"
	"github.com/P-eter-shi/compow/internal/protocol"
)

// Dispatcher fans events out to recipient devices. It only reads the
// presence registry; all registry mutation belongs to the router.
type Dispatcher struct {
	registry  *presence.Registry
	collector *metrics.Collector
}

func NewDispatcher(registry *presence.Registry, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{registry: registry, collector: collector}
}

// Emergency relays a danger alert and returns the delivery summary for the
// sender's acknowledgement.
func (d *Dispatcher) Emergency(p *protocol.EmergencyAlert) (*protocol.DeliverySummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d.collector.RecordDispatch(protocol.EventEmergencyAlert)
	logger.InfoF("Emergency alert from %s (%s) to %d contacts", p.FromUserName, p.FromUserID, len(p.ContactIDs))

	frame, err := protocol.Encode(protocol.EventEmergencyAlertReceived, protocol.EmergencyAlertReceived{
		FromUserID:   p.FromUserID,
		FromUserName: p.FromUserName,
		Message:      p.Message,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Timestamp:    p.Timestamp,
		AlertType:    protocol.AlertTypeEmergency,
	})
	if err != nil {
		return nil, err
	}
	return d.fanOut(frame, p.ContactIDs, "Alert"), nil
}

// Safe relays an "I am safe" notification.
func (d *Dispatcher) Safe(p *protocol.SafeAlert) (*protocol.DeliverySummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d.collector.RecordDispatch(protocol.EventSafeAlert)
	logger.InfoF("Safe alert from %s (%s) to %d contacts", p.FromUserName, p.FromUserID, len(p.ContactIDs))

	frame, err := protocol.Encode(protocol.EventSafeAlertReceived, protocol.SafeAlertReceived{
		FromUserID:   p.FromUserID,
		FromUserName: p.FromUserName,
		Message:      p.Message,
		Timestamp:    p.Timestamp,
		AlertType:    protocol.AlertTypeSafe,
	})
	if err != nil {
		return nil, err
	}
	return d.fanOut(frame, p.ContactIDs, "Safe alert"), nil
}

// Chat relays a chat message.
func (d *Dispatcher) Chat(p *protocol.ChatMessage) (*protocol.DeliverySummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d.collector.RecordDispatch(protocol.EventChatMessage)
	logger.DebugF("Chat message from %s (%s) to %d contacts", p.FromUserName, p.FromUserID, len(p.ContactIDs))

	frame, err := protocol.Encode(protocol.EventChatMessageReceived, protocol.ChatMessageReceived{
		FromUserID:   p.FromUserID,
		FromUserName: p.FromUserName,
		Message:      p.Message,
		Timestamp:    p.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	return d.fanOut(frame, p.ContactIDs, "Message"), nil
}

// LiveLocation forwards a position update. Fire-and-forget: no summary, no
// ack, offline recipients are silently skipped. The forwarded event carries
// the server's clock in unix milliseconds.
func (d *Dispatcher) LiveLocation(p *protocol.LiveLocationUpdate) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.collector.RecordDispatch(protocol.EventLiveLocationUpdate)

	frame, err := protocol.Encode(protocol.EventContactLiveLocation, protocol.ContactLiveLocation{
		FromUserID:   p.FromUserID,
		FromUserName: p.FromUserName,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	for _, contactID := range p.ContactIDs {
		for _, device := range d.registry.ConnectionsOf(contactID) {
			device.Enqueue(frame)
		}
	}
	return nil
}

// fanOut delivers one encoded frame to every device of every listed
// recipient, in input order, and accounts per recipient. Duplicates in the
// list fan out once per entry. Device membership is read once per recipient,
// so each recipient's devices get the event all-or-none.
func (d *Dispatcher) fanOut(frame []byte, contactIDs []string, verb string) *protocol.DeliverySummary {
	summary := &protocol.DeliverySummary{
		Success:        true,
		Total:          len(contactIDs),
		DeliveryStatus: make([]protocol.DeliveryRecord, 0, len(contactIDs)),
	}

	for _, contactID := range contactIDs {
		devices := d.registry.ConnectionsOf(contactID)
		if len(devices) == 0 {
			summary.Failed++
			summary.DeliveryStatus = append(summary.DeliveryStatus, protocol.DeliveryRecord{
				ContactID: contactID,
				Status:    protocol.DeliveryOffline,
			})
			d.collector.RecordDelivery(protocol.DeliveryOffline)
			logger.DebugF("Contact %s is offline", contactID)
			continue
		}
		for _, device := range devices {
			// a full buffer or dead socket fails silently for that
			// one device without aborting the rest of the fan-out
			device.Enqueue(frame)
		}
		summary.Delivered++
		summary.DeliveryStatus = append(summary.DeliveryStatus, protocol.DeliveryRecord{
			ContactID: contactID,
			Status:    protocol.DeliveryDelivered,
			Devices:   len(devices),
		})
		d.collector.RecordDelivery(protocol.DeliveryDelivered)
		logger.DebugF("Sent to %s (%d devices online)", contactID, len(devices))
	}

	summary.Message = fmt.Sprintf("%s sent to %d/%d contacts", verb, summary.Delivered, summary.Total)
	return summary
}
