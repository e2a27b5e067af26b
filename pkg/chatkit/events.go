package chatkit

// Event types.
const (
	EventThreadCreated   = "thread.created"
	EventThreadItemAdded = "thread.item.added"
	EventThreadItemDone  = "thread.item.done"
	EventError           = "error"
)

// Event is one frame of a streaming response.
type Event struct {
	Type   string      `json:"type"`
	Thread *Thread     `json:"thread,omitempty"`
	Item   *ThreadItem `json:"item,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo is the body of an error event. Details stay in the server log.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	AllowRetry bool   `json:"allow_retry"`
}

// ItemDone announces a completed item.
func ItemDone(item ThreadItem) Event {
	return Event{Type: EventThreadItemDone, Item: &item}
}

// ItemAdded announces an item that is still being produced.
func ItemAdded(item ThreadItem) Event {
	return Event{Type: EventThreadItemAdded, Item: &item}
}

// ThreadCreated announces a new thread.
func ThreadCreated(meta ThreadMetadata) Event {
	return Event{Type: EventThreadCreated, Thread: &Thread{
		ThreadMetadata: meta,
		Items:          Page[ThreadItem]{Data: []ThreadItem{}},
	}}
}

// ErrorEvent builds a generic stream error.
func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Error: &ErrorInfo{Code: code, Message: message, AllowRetry: true}}
}

// WidgetEvents is the event sequence of a static widget: a single done event.
func WidgetEvents(thread ThreadMetadata, widget []byte) []Event {
	return []Event{ItemDone(NewWidgetItem(thread.ID, widget))}
}
