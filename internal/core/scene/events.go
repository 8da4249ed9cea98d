package scene

import (
	"time"

	"github.com/nslaift/nslaift/internal/core/events/bus"
	"github.com/nslaift/nslaift/internal/core/observability/log"
)

// Event types published on the scene bus.
const (
	EventEntityCreated = "entity.created"
	EventEntityDeleted = "entity.deleted"
	EventSceneRendered = "scene.rendered"
	EventSceneCleared  = "scene.cleared"
)

const eventSource = "scene"

type EntityEvent struct {
	ID       ID
	Name     string
	Kind     string
	Category Category
}

type RenderEvent struct {
	Counter    uint64
	Cameras    int
	Iterations int
	Elapsed    time.Duration
}

func entityEvent(e *Entity) EntityEvent {
	return EntityEvent{ID: e.id, Name: e.name, Kind: e.kind, Category: e.category}
}

func (s *Scene) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(bus.NewEvent(typ, eventSource, data, nil)); err != nil {
		s.logger.Warn("Event handler failed", log.String("event", typ), log.Error(err))
	}
}
