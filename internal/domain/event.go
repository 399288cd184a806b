// Package domain holds the core types shared by the event store, the
// generator, and the processor: the persistent CronEvent and
// OneOffScheduledEvent rows, their shared status machine, and the
// small value types a trigger definition is made of.
package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrTriggerNotFound = errors.New("trigger not found in catalog")
	ErrEventNotFound    = errors.New("event not found")
)

// Status is the lifecycle state of a CronEvent or OneOffScheduledEvent.
// Transitions are restricted to the state machine described in the
// processor package; no other mutation path exists.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLocked    Status = "locked"
	StatusDelivered Status = "delivered"
	StatusError     Status = "error"
	StatusDead      Status = "dead"
)

// Class distinguishes the two event tables. Every gateway and registry
// operation is parameterized by it instead of duplicating the method
// set per table.
type Class string

const (
	ClassCron   Class = "cron"
	ClassOneOff Class = "oneoff"
)

// RetryConf is embedded verbatim in each one-off event and resolved
// from the catalog for cron events.
type RetryConf struct {
	NumRetries           int `json:"num_retries"`
	RetryIntervalSeconds int `json:"retry_interval_seconds"`
	TimeoutSeconds       int `json:"timeout_seconds"`
	ToleranceSeconds     int `json:"tolerance_seconds"`
}

// HeaderConf is a single header, either a literal value or an
// environment-variable indirection, resolved at invocation time by the
// resolve package.
type HeaderConf struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	FromEnv  string `json:"from_env,omitempty"`
}

// WebhookConf is an unresolved webhook reference: either a literal URL
// or an environment-variable indirection.
type WebhookConf struct {
	Value   string `json:"value,omitempty"`
	FromEnv string `json:"from_env,omitempty"`
}

// CronEvent is one materialized future occurrence of a recurring
// trigger. Rows are inserted by the generator and consumed by the
// processor; the trigger's webhook/retry/header configuration lives in
// the catalog, not on the row itself.
type CronEvent struct {
	ID            string
	TriggerName   string
	ScheduledTime time.Time
	NextRetryAt   *time.Time
	Tries         int
	Status        Status
	CreatedAt     time.Time
}

// OneOffScheduledEvent is a self-describing, user-created single-shot
// delivery. Unlike CronEvent it carries its own webhook/payload/retry
// configuration because it has no catalog entry to borrow them from.
type OneOffScheduledEvent struct {
	ID            string
	ScheduledTime time.Time
	NextRetryAt   *time.Time
	Tries         int
	Status        Status
	CreatedAt     time.Time

	WebhookConf WebhookConf
	Payload     json.RawMessage
	RetryConf   RetryConf
	HeaderConf  []HeaderConf
	Comment     *string
}

// ScheduledEventFull is what the processor actually delivers: a
// CronEvent or OneOffScheduledEvent combined with the resolved webhook
// URL, headers, payload, and retry policy it needs to make the HTTP
// call. TriggerName is empty for one-off events.
type ScheduledEventFull struct {
	ID            string
	Class         Class
	TriggerName   string // empty for one-off events
	ScheduledTime time.Time
	Tries         int
	CreatedAt     time.Time // only meaningful (and only emitted) for one-off events

	WebhookURL string
	Payload    json.RawMessage
	Headers    map[string]string
	RetryConf  RetryConf
	Comment    *string
}
