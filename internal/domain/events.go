package domain

// EventType represents the type of domain event
type EventType string

// Event types
const (
	EventPushReceived          EventType = "PushReceived"
	EventCatalogChanged        EventType = "CatalogChanged"
	EventCatalogResetRequested EventType = "CatalogResetRequested"
	EventStatusUpdated         EventType = "StatusUpdated"
	EventHostReady             EventType = "HostReady"
	EventReloadRequested       EventType = "ReloadRequested"
	EventSearchDispatched      EventType = "SearchDispatched"
	EventError                 EventType = "Error"
	EventConfigLoaded          EventType = "ConfigLoaded"
	EventConfigSaved           EventType = "ConfigSaved"
	EventSearchPathsLoaded     EventType = "SearchPathsLoaded"
	EventSearchPathsSaved      EventType = "SearchPathsSaved"
	EventResourceFailed        EventType = "ResourceFailed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	Type() EventType
}

// PushMessage is one message received on the host push channel
type PushMessage struct {
	Name    string
	Payload []byte // raw payload, already unwrapped from the transport envelope
	Epoch   uint64 // request epoch the host echoed back, 0 if untagged
}

// PushReceivedEvent carries a host push message onto the bus so it is applied in order
type PushReceivedEvent struct {
	Message PushMessage
}

func (e PushReceivedEvent) Type() EventType { return EventPushReceived }

// CatalogChangedEvent is emitted after the catalog has been mutated
type CatalogChangedEvent struct {
	Reason string
	Size   int
}

func (e CatalogChangedEvent) Type() EventType { return EventCatalogChanged }

// CatalogResetRequestedEvent asks the catalog writer to clear stale results
// before results for Epoch arrive
type CatalogResetRequestedEvent struct {
	Epoch uint64
	Mode  Mode
}

func (e CatalogResetRequestedEvent) Type() EventType { return EventCatalogResetRequested }

// StatusLevel classifies status text
type StatusLevel int

const (
	StatusInfo StatusLevel = iota
	StatusSuccess
	StatusError
)

// StatusUpdatedEvent forwards host status text verbatim
type StatusUpdatedEvent struct {
	Source string // message name it came from, e.g. "status_update" or "index_status"
	Text   string
	Level  StatusLevel
}

func (e StatusUpdatedEvent) Type() EventType { return EventStatusUpdated }

// HostReadyEvent is emitted when the host reports it can serve listings
type HostReadyEvent struct{}

func (e HostReadyEvent) Type() EventType { return EventHostReady }

// ReloadRequestedEvent is emitted when the host finished a data reset
type ReloadRequestedEvent struct{}

func (e ReloadRequestedEvent) Type() EventType { return EventReloadRequested }

// SearchDispatchedEvent is emitted when a settled query has been sent to the host
type SearchDispatchedEvent struct {
	Query string
	Mode  Mode
	Epoch uint64
}

func (e SearchDispatchedEvent) Type() EventType { return EventSearchDispatched }

// ErrorEvent is emitted when an operation fails; it never blocks the caller
type ErrorEvent struct {
	Op      string
	Message string
	Err     error
}

func (e ErrorEvent) Type() EventType { return EventError }

// ConfigLoadedEvent is emitted when the client configuration is loaded
type ConfigLoadedEvent struct {
	File string // empty when defaults were used
}

func (e ConfigLoadedEvent) Type() EventType { return EventConfigLoaded }

// ConfigSavedEvent is emitted when the client configuration is saved
type ConfigSavedEvent struct {
	File string
}

func (e ConfigSavedEvent) Type() EventType { return EventConfigSaved }

// SearchPathsLoadedEvent is emitted when the search paths were fetched from the host
type SearchPathsLoadedEvent struct {
	Paths []string
}

func (e SearchPathsLoadedEvent) Type() EventType { return EventSearchPathsLoaded }

// SearchPathsSavedEvent is emitted when the host persisted the search paths
type SearchPathsSavedEvent struct {
	Paths []string
}

func (e SearchPathsSavedEvent) Type() EventType { return EventSearchPathsSaved }

// ResourceFailedEvent is emitted when a resolved resource could not be loaded
type ResourceFailedEvent struct {
	ID  string
	URI string
	Err error
}

func (e ResourceFailedEvent) Type() EventType { return EventResourceFailed }
