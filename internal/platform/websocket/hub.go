// Package websocket pushes live dashboard events to connected clients. Each
// client subscribes to topics and receives every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is the JSON frame delivered to subscribers.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

const (
	EventPatientCreated      = "patient.created"
	EventPatientAssigned     = "patient.assigned"
	EventPatientReviewed     = "patient.reviewed"
	EventPredictionCompleted = "prediction.completed"
)

// HospitalTopic carries events for everyone in a hospital.
func HospitalTopic(hospitalID int64) string {
	return "hospital:" + strconv.FormatInt(hospitalID, 10)
}

// DoctorTopic carries events for a single doctor's assigned patients.
func DoctorTopic(doctorID int64) string {
	return "doctor:" + strconv.FormatInt(doctorID, 10)
}

// NewEvent builds an event for a patient resource. data is marshalled to
// JSON; a marshal failure leaves Data empty.
func NewEvent(eventType, topic string, patientID int64, data any) Event {
	ev := Event{
		Type:         eventType,
		Topic:        topic,
		ResourceType: "patient",
		ResourceID:   strconv.FormatInt(patientID, 10),
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// ClientMessage is an inbound subscription change from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher defines the interface for publishing events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected user. The entitlement fields decide which topics
// the client may join.
type Client struct {
	ID         string
	UserID     int64
	Role       string
	HospitalID int64
	Topics     []string
	Send       chan []byte
	conn       Conn
}

// Entitled reports whether the client may subscribe to topic: its own
// hospital topic, and its own doctor topic when the client is a doctor.
func (c *Client) Entitled(topic string) bool {
	if c.HospitalID != 0 && topic == HospitalTopic(c.HospitalID) {
		return true
	}
	return c.Role == "doctor" && topic == DoctorTopic(c.UserID)
}

// DefaultTopics are the topics a client joins on connect.
func (c *Client) DefaultTopics() []string {
	var topics []string
	if c.HospitalID != 0 {
		topics = append(topics, HospitalTopic(c.HospitalID))
	}
	if c.Role == "doctor" {
		topics = append(topics, DoctorTopic(c.UserID))
	}
	return topics
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
// Calling it twice is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds the entitled subset of topics and returns the ones refused.
func (h *Hub) Subscribe(client *Client, topics []string) (refused []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if !client.Entitled(topic) {
			refused = append(refused, topic)
			continue
		}
		if hasTopic(client.Topics, topic) {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return refused
}

func hasTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a client's subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if refused := h.Subscribe(client, msg.Topics); len(refused) > 0 {
			h.logger.Warn().
				Int64("user_id", client.UserID).
				Strs("topics", refused).
				Msg("websocket: subscription refused")
		}
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends an event to all clients subscribed to topic. Clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("websocket: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug().Str("client_id", client.ID).Str("topic", topic).Msg("websocket: client buffer full, event dropped")
		}
	}
}

// Publish broadcasts event to its topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Topic == "" {
		return fmt.Errorf("websocket: event %q has no topic", event.Type)
	}
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
