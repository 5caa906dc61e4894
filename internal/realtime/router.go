package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/utils"
)

// DefaultHistoryDepth is the number of recent events kept per channel
const DefaultHistoryDepth = 50

// RouteResolver maps a bus to the route it currently runs on
type RouteResolver interface {
	RouteOf(busID string) (string, bool)
}

// Router fans events out to the current subscribers of a channel.
//
// Recipients are resolved when an event is published, so a connection that
// joins after a publish never sees it (except through GetRecent), and a bus
// reassigned to another route is immediately visible to that route's
// subscribers. Publishes on the same channel are serialized; delivery to one
// connection never waits on another.
type Router struct {
	registry *Registry
	routes   RouteResolver
	logger   *logrus.Logger
	depth    int

	order *utils.KeyedMutex

	histMu  sync.Mutex
	history map[string]*eventRing
}

// Events superseded by the next one of their kind are not kept in history;
// the latest value is available from the fleet store instead.
var transientEvents = map[string]bool{
	models.EventBusLocationUpdate: true,
	models.EventPong:              true,
}

// NewRouter creates a router keeping depth recent events per channel
func NewRouter(registry *Registry, routes RouteResolver, depth int, logger *logrus.Logger) *Router {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Router{
		registry: registry,
		routes:   routes,
		logger:   logger,
		depth:    depth,
		order:    utils.NewKeyedMutex(),
		history:  make(map[string]*eventRing),
	}
}

// Publish delivers event to every connection subscribed to channel. For a
// bus channel that includes subscribers of the bus's current route, and the
// event is kept in the route's history as well as the bus's.
func (r *Router) Publish(channel string, event models.Event) models.DeliveryReport {
	event.Channel = channel

	unlock := r.order.Lock(channel)
	defer unlock()

	audience, known := r.audience(channel)
	if known && !transientEvents[event.Name] {
		r.remember(audience, event)
	}

	recipients := r.registry.Recipients(audience...)
	report := models.DeliveryReport{Channel: channel}

	for _, conn := range recipients {
		err := conn.Deliver(event)
		report.Record(conn.ID, err == nil)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"connection_id": conn.ID,
				"channel":       channel,
				"event":         event.Name,
			}).WithError(err).Debug("Event delivery failed")
		}
	}

	return report
}

// GetRecent returns the retained events of a channel, oldest first
func (r *Router) GetRecent(channel string) []models.Event {
	r.histMu.Lock()
	defer r.histMu.Unlock()

	ring, ok := r.history[channel]
	if !ok {
		return []models.Event{}
	}
	return ring.items()
}

// audience returns the channels whose subscribers receive a publish on
// channel. known is false for a bus channel naming a bus the fleet does not
// have; such channels get no history.
func (r *Router) audience(channel string) ([]string, bool) {
	kind, id, ok := models.ParseChannel(channel)
	if !ok || kind != models.ChannelKindBus || r.routes == nil {
		return []string{channel}, true
	}
	routeID, ok := r.routes.RouteOf(id)
	if !ok {
		return []string{channel}, false
	}
	if routeID == "" {
		return []string{channel}, true
	}
	return []string{channel, models.RouteChannel(routeID)}, true
}

func (r *Router) remember(channels []string, event models.Event) {
	r.histMu.Lock()
	defer r.histMu.Unlock()

	for _, channel := range channels {
		ring, ok := r.history[channel]
		if !ok {
			ring = newEventRing(r.depth)
			r.history[channel] = ring
		}
		ring.push(event)
	}
}

// eventRing is a fixed-size FIFO that overwrites its oldest entry
type eventRing struct {
	buf   []models.Event
	start int
	size  int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]models.Event, capacity)}
}

func (r *eventRing) push(event models.Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = event
		r.size++
		return
	}
	r.buf[r.start] = event
	r.start = (r.start + 1) % len(r.buf)
}

func (r *eventRing) items() []models.Event {
	out := make([]models.Event, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
