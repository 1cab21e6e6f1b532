// Package events fans recognition results out to asynchronous consumers such
// as the MQTT publisher.
package events

import (
	"time"
)

// RecognitionEvent describes a completed identification or detection.
type RecognitionEvent struct {
	RequestID  string    `json:"request_id,omitempty"`
	Endpoint   string    `json:"endpoint"`
	Username   string    `json:"username"`
	Label      string    `json:"local_name"`
	Confidence float64   `json:"confidence"`
	ImagePath  string    `json:"image_path"`
	Timestamp  time.Time `json:"timestamp"`
}

// Consumer receives events from the bus.
type Consumer interface {
	// Name identifies the consumer in logs.
	Name() string
	// ProcessEvent handles one event. Errors are logged and counted only.
	ProcessEvent(event RecognitionEvent) error
}

// Stats counts bus activity.
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
