// Package model defines the entities of the ingestion core's data model.
// Every entity carries a surrogate integer primary key (ID) and an opaque
// public_id used on all external interfaces; cross-entity references use
// public_id except where noted.
package model

import "time"

// EventType enumerates the kinds of sensor/actuator channel an Event can be.
type EventType string

const (
	EventTypeSensor      EventType = "sensor"
	EventTypeActuator    EventType = "actuator"
	EventTypeRange       EventType = "range"
	EventTypeCmdButton   EventType = "cmd_button"
	EventTypeCmdOpened   EventType = "cmd_opened"
	EventTypeCmdClosed   EventType = "cmd_closed"
)

// Event is a named sensor/actuator channel.
type Event struct {
	ID       int64     `db:"id" json:"-"`
	PublicID string    `db:"public_id" json:"public_id"`
	Name     string    `db:"name" json:"name"`
	Min      *float64  `db:"min_value" json:"min,omitempty"`
	Max      *float64  `db:"max_value" json:"max,omitempty"`
	Unit     string    `db:"unit" json:"unit"`
	Type     EventType `db:"type" json:"type"`
	UserID   int64     `db:"user_id" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Experiment is a time-bounded measurement session. At most one
// experiment has StoppedOn == nil at any time (the active experiment).
type Experiment struct {
	ID        int64      `db:"id" json:"-"`
	PublicID  string     `db:"public_id" json:"public_id"`
	Name      string     `db:"name" json:"name"`
	StartedOn time.Time  `db:"started_on" json:"started_on"`
	StoppedOn *time.Time `db:"stopped_on" json:"stopped_on,omitempty"`
}

// IsActive reports whether the experiment has not yet been stopped.
func (e Experiment) IsActive() bool { return e.StoppedOn == nil }

// Datapoint is a single reading. Created by ingestion; never mutated.
type Datapoint struct {
	ID                 int64     `db:"id" json:"-"`
	PublicID           string    `db:"public_id" json:"public_id"`
	Value              float64   `db:"value" json:"value"`
	Timestamp          time.Time `db:"timestamp" json:"timestamp"`
	EventPublicID      string    `db:"event_public_id" json:"event_public_id"`
	EventID            int64     `db:"event_id" json:"-"`
	ExperimentPublicID *string   `db:"experiment_public_id" json:"experiment_public_id,omitempty"`
	ExperimentID       *int64    `db:"experiment_id" json:"-"`
}

// PluginStatus enumerates the lifecycle status of a PluginInstance.
type PluginStatus string

const (
	PluginStatusInactive  PluginStatus = "inactive"
	PluginStatusConnected PluginStatus = "connected"
	PluginStatusError     PluginStatus = "error"
	PluginStatusDemo      PluginStatus = "demo"
)

// PluginInstance is a configured instance of a device driver.
type PluginInstance struct {
	ID           int64        `db:"id" json:"-"`
	PublicID     string       `db:"public_id" json:"public_id"`
	PluginID     string       `db:"plugin_id" json:"plugin_id"`
	InstanceName string       `db:"instance_name" json:"instance_name"`
	DemoMode     bool         `db:"demo_mode" json:"demo_mode"`
	Enabled      bool         `db:"enabled" json:"enabled"`
	Status       PluginStatus `db:"status" json:"status"`
	Config       []byte       `db:"config" json:"config,omitempty"`
}

// ChannelDirection enumerates the data-flow direction of a ChannelMapping.
type ChannelDirection string

const (
	ChannelDirectionInput         ChannelDirection = "input"
	ChannelDirectionOutput        ChannelDirection = "output"
	ChannelDirectionBidirectional ChannelDirection = "bidirectional"
)

// ChannelMapping links a plugin instance channel to an Event. Linked by
// surrogate key for cascade performance, per §3.
type ChannelMapping struct {
	ID               int64            `db:"id" json:"-"`
	PublicID         string           `db:"public_id" json:"public_id"`
	PluginInstanceID int64            `db:"plugin_instance_id" json:"-"`
	ChannelID        string           `db:"channel_id" json:"channel_id"`
	ChannelName      string           `db:"channel_name" json:"channel_name"`
	Direction        ChannelDirection `db:"direction" json:"direction"`
	Unit             string           `db:"unit" json:"unit"`
	EventID          *int64           `db:"event_id" json:"-"`
}

// RuleOperator enumerates the threshold comparison operators a Rule predicate
// may use.
type RuleOperator string

const (
	OpGreaterThan    RuleOperator = "gt"
	OpLessThan       RuleOperator = "lt"
	OpEqual          RuleOperator = "eq"
	OpGreaterOrEqual RuleOperator = "gte"
	OpLessOrEqual    RuleOperator = "lte"
	OpBetween        RuleOperator = "between"
	OpNotBetween     RuleOperator = "not_between"
)

// RuleActionType enumerates what a triggered Rule does.
type RuleActionType string

const (
	RuleActionWebhook RuleActionType = "webhook"
	RuleActionLog     RuleActionType = "log"
)

// DefaultWebhookEventType is used when a webhook-action Rule omits an
// explicit event type.
const DefaultWebhookEventType = "sensor.threshold_exceeded"

// Rule is a threshold condition evaluated on each datapoint of its Event.
type Rule struct {
	ID                int64          `db:"id" json:"-"`
	PublicID          string         `db:"public_id" json:"public_id"`
	Name              string         `db:"name" json:"name"`
	EventPublicID     string         `db:"event_public_id" json:"event_public_id"`
	EventID           int64          `db:"event_id" json:"-"`
	Operator          RuleOperator   `db:"operator" json:"operator"`
	Threshold         float64        `db:"threshold" json:"threshold"`
	ThresholdHigh     *float64       `db:"threshold_high" json:"threshold_high,omitempty"`
	ActionType        RuleActionType `db:"action_type" json:"action_type"`
	WebhookEventType  *string        `db:"webhook_event_type" json:"webhook_event_type,omitempty"`
	Enabled           bool           `db:"enabled" json:"enabled"`
	CooldownSeconds   int            `db:"cooldown_seconds" json:"cooldown_seconds"`
	LastTriggeredAt   *time.Time     `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
}

// RequiresThresholdHigh reports whether this operator requires ThresholdHigh.
func (o RuleOperator) RequiresThresholdHigh() bool {
	return o == OpBetween || o == OpNotBetween
}

// Webhook is a subscription to the event stream.
type Webhook struct {
	ID       int64    `db:"id" json:"-"`
	PublicID string   `db:"public_id" json:"public_id"`
	URL      string   `db:"url" json:"url"`
	Secret   *string  `db:"secret" json:"-"`
	Events   []string `db:"-" json:"events"`
	EventsRaw []byte  `db:"events" json:"-"`
	Enabled  bool     `db:"enabled" json:"enabled"`
	UserID   int64    `db:"user_id" json:"-"`
}

// DeliveryStatus enumerates the lifecycle status of a WebhookDelivery.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
)

// WebhookDelivery is one attempted delivery of a webhook payload.
type WebhookDelivery struct {
	ID             int64          `db:"id" json:"-"`
	PublicID       string         `db:"public_id" json:"public_id"`
	WebhookID      int64          `db:"webhook_id" json:"-"`
	EventType      string         `db:"event_type" json:"event_type"`
	Payload        []byte         `db:"payload" json:"payload"`
	Status         DeliveryStatus `db:"status" json:"status"`
	Attempts       int            `db:"attempts" json:"attempts"`
	LastStatusCode *int           `db:"last_status_code" json:"last_status_code,omitempty"`
	LastError      *string        `db:"last_error" json:"last_error,omitempty"`
	DeliveredOn    *time.Time     `db:"delivered_on" json:"delivered_on,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// FirmwareStatus enumerates the states of the OTA update state machine.
type FirmwareStatus string

const (
	FirmwarePending     FirmwareStatus = "pending"
	FirmwareDownloading FirmwareStatus = "downloading"
	FirmwareVerifying   FirmwareStatus = "verifying"
	FirmwareApplying    FirmwareStatus = "applying"
	FirmwareCompleted   FirmwareStatus = "completed"
	FirmwareFailed      FirmwareStatus = "failed"
	FirmwareRolledBack  FirmwareStatus = "rolled_back"
)

// FirmwareUpdate is a registered firmware version.
type FirmwareUpdate struct {
	ID             int64          `db:"id" json:"-"`
	PublicID       string         `db:"public_id" json:"public_id"`
	Version        string         `db:"version" json:"version"`
	Changelog      string         `db:"changelog" json:"changelog"`
	Status         FirmwareStatus `db:"status" json:"status"`
	FilePath       *string        `db:"file_path" json:"file_path,omitempty"`
	FileHashSHA256 *string        `db:"file_hash_sha256" json:"file_hash_sha256,omitempty"`
	FileSizeBytes  *int64         `db:"file_size_bytes" json:"file_size_bytes,omitempty"`
	StartedOn      *time.Time     `db:"started_on" json:"started_on,omitempty"`
	CompletedOn    *time.Time     `db:"completed_on" json:"completed_on,omitempty"`
	ErrorMessage   *string        `db:"error_message" json:"error_message,omitempty"`
}

// External-collaborator entities: only keys and reference direction
// matter to the core (see spec §6/§12 for the auth boundary).

// User is an external-collaborator entity; the core only needs its
// surrogate key and role for token verification.
type User struct {
	ID           int64  `db:"id" json:"-"`
	PublicID     string `db:"public_id" json:"public_id"`
	Email        string `db:"email" json:"email"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         string `db:"role" json:"role"`
}

// ApiToken is an opaque "wm_"-prefixed token; only its SHA-256 hash is
// stored.
type ApiToken struct {
	ID         int64      `db:"id" json:"-"`
	PublicID   string     `db:"public_id" json:"public_id"`
	UserID     int64      `db:"user_id" json:"-"`
	TokenHash  string     `db:"token_hash" json:"-"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// BlacklistToken records a revoked JWT's jti until its original expiry
// passes, at which point the janitor reclaims the row.
type BlacklistToken struct {
	ID            int64     `db:"id" json:"-"`
	TokenJTI      string    `db:"token_jti" json:"-"`
	BlacklistedOn time.Time `db:"blacklisted_on" json:"blacklisted_on"`
}

// PageResult is the paginated response envelope for any listable entity.
type PageResult[T any] struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
	Data     []T `json:"data"`
}
