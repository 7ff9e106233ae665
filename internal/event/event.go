// Package event is a small in-process event bus. The migration run dispatches
// progress events on it, and the CLI (or tests) subscribe to render progress.
package event

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/pkg/logger"
)

var log = logger.Get("Events")

type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// ProjectStarted is the payload of PROJECT_STARTED.
	ProjectStarted struct {
		SourceDir string
		Position  int
		Total     int
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	PROJECT_STARTED  Event = "project:started"
	PROJECT_COMPLETE Event = "project:complete"
	ASSET_COMPLETE   Event = "asset:complete"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel sends a HandlerEvent on the channel any time one of the
// events provided is dispatched. If the channel is blocked, the dispatcher
// will also block, so channels should be buffered appropriately.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction registers a handler which is called synchronously on
// dispatch. It should return quickly.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction registers a handler which is called inside its own goroutine.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch delivers the payload to every handler registered for the event.
// Dispatch may be called from several goroutines at once (conversion workers
// emit ASSET_COMPLETE concurrently).
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := validatePayload(event, payload); err != nil {
		log.Emit(logger.ERROR, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fns := handler.fnHandlers[event]
	chans := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fns {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	for _, handle := range chans {
		handle <- HandlerEvent{event, payload}
	}
}

// validatePayload ensures the payload type is the one documented for the event.
func validatePayload(event Event, payload Payload) error {
	var ok bool
	switch event {
	case PROJECT_STARTED:
		_, ok = payload.(ProjectStarted)
	case PROJECT_COMPLETE:
		_, ok = payload.(report.ProjectOutcome)
	case ASSET_COMPLETE:
		_, ok = payload.(report.ConversionResult)
	default:
		return fmt.Errorf("event type %q not recognized", event)
	}

	if !ok {
		typeName := "nil"
		if t := reflect.TypeOf(payload); t != nil {
			typeName = t.Name()
		}
		return fmt.Errorf("illegal payload (type %s) for %s event", typeName, event)
	}

	return nil
}
