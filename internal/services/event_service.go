package services

import (
	"log"

	"taskhive/internal/realtime"
)

// Notification topics emitted by the engine.
const (
	TopicAssigned   = "task:assigned"
	TopicNoProvider = "task:no-provider"
	TopicAccepted   = "task:accepted"
	TopicRejected   = "task:rejected"
	TopicInProgress = "task:in-progress"
	TopicReady      = "task:ready"
	TopicApproved   = "task:approved"
	TopicCancelled  = "task:cancelled"
	TopicUnassigned = "task:unassigned"
	TopicReassign   = "task:reassign"
)

// Event is the notification record fanned out after every state change.
type Event struct {
	Topic   string      `json:"topic"`
	TaskID  string      `json:"task_id"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// EventPublisher delivers events to the accounts a task concerns.
// Delivery is at-least-once and best-effort: failures are logged and never
// block or roll back the state transition that produced the event.
type EventPublisher interface {
	Publish(event Event, accountIDs ...string)
}

type eventService struct {
	hub *realtime.Hub
}

func NewEventService(hub *realtime.Hub) EventPublisher {
	return &eventService{hub: hub}
}

func (s *eventService) Publish(event Event, accountIDs ...string) {
	for _, id := range accountIDs {
		if id == "" {
			continue
		}
		n := s.hub.Send(id, event)
		if n == 0 {
			log.Printf("[events][publish] topic=%s task=%s account=%s no live connections", event.Topic, event.TaskID, id)
			continue
		}
		log.Printf("[events][publish] topic=%s task=%s account=%s delivered=%d", event.Topic, event.TaskID, id, n)
	}
}
