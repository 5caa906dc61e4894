package realtime

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/utils"
)

// ErrConnectionNotFound is returned for operations on an unregistered connection
var ErrConnectionNotFound = errors.New("connection not registered")

// Sink is the outbound side of a connection. Deliver must not block.
type Sink interface {
	Deliver(event models.Event) error
	Close() error
}

// Connection is one live authenticated socket. Channel membership is owned by
// the Registry and only changed under its lock.
type Connection struct {
	ID          string
	UserID      string
	Role        models.Role
	Device      utils.DeviceInfo
	RemoteIP    string
	ConnectedAt time.Time

	sink     Sink
	lastSeen atomic.Int64
	channels map[string]struct{}
}

// NewConnection creates a connection with a fresh id
func NewConnection(userID string, role models.Role, sink Sink) *Connection {
	now := time.Now()
	c := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Role:        role,
		ConnectedAt: now,
		sink:        sink,
		channels:    make(map[string]struct{}),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Identity returns the authenticated identity behind the connection
func (c *Connection) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, Role: c.Role}
}

// Touch records a heartbeat
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last heartbeat
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Deliver hands an event to the connection's sink
func (c *Connection) Deliver(event models.Event) error {
	return c.sink.Deliver(event)
}

// Close closes the connection's sink
func (c *Connection) Close() error {
	return c.sink.Close()
}

// ConnectionInfo is a point-in-time view of a connection for admin listings
type ConnectionInfo struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Role        models.Role      `json:"role"`
	Device      utils.DeviceInfo `json:"device"`
	RemoteIP    string           `json:"remoteIp"`
	ConnectedAt time.Time        `json:"connectedAt"`
	LastSeen    time.Time        `json:"lastSeen"`
	Channels    []string         `json:"channels"`
}

// Registry tracks live connections and their channel memberships. Both
// indexes (connection -> channels, channel -> connections) change together
// under one lock so they never disagree.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	channels map[string]map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		channels: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection. Admins join the fleet-wide alert channel.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.channels == nil {
		conn.channels = make(map[string]struct{})
	}
	r.conns[conn.ID] = conn

	if conn.Role == models.RoleAdmin {
		r.subscribeLocked(conn, models.AdminChannel)
	}
}

// Unregister removes a connection from every channel it joined. It returns
// false when the connection was already gone.
func (r *Registry) Unregister(connectionID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return nil, false
	}

	for channel := range conn.channels {
		r.removeMemberLocked(channel, connectionID)
	}
	conn.channels = make(map[string]struct{})
	delete(r.conns, connectionID)

	return conn, true
}

// Subscribe adds the connection to a channel; repeated calls are no-ops
func (r *Registry) Subscribe(connectionID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return ErrConnectionNotFound
	}
	r.subscribeLocked(conn, channel)
	return nil
}

// Unsubscribe removes the connection from a channel; repeated calls are no-ops
func (r *Registry) Unsubscribe(connectionID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return ErrConnectionNotFound
	}
	delete(conn.channels, channel)
	r.removeMemberLocked(channel, connectionID)
	return nil
}

func (r *Registry) subscribeLocked(conn *Connection, channel string) {
	conn.channels[channel] = struct{}{}
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	members[conn.ID] = struct{}{}
}

func (r *Registry) removeMemberLocked(channel, connectionID string) {
	members, ok := r.channels[channel]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.channels, channel)
	}
}

// SubscribersOf returns the ids of the connections currently in a channel
func (r *Registry) SubscribersOf(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Recipients returns the union of the members of the given channels, each
// connection at most once
func (r *Registry) Recipients(channels ...string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []*Connection
	for _, channel := range channels {
		for id := range r.channels[channel] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r.conns[id])
		}
	}
	return out
}

// ChannelsOf returns the channels a connection has joined
func (r *Registry) ChannelsOf(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	return sortedKeys(conn.channels)
}

// Stale returns connections whose last heartbeat is before cutoff
func (r *Registry) Stale(cutoff time.Time) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connection
	for _, conn := range r.conns {
		if conn.LastSeen().Before(cutoff) {
			out = append(out, conn)
		}
	}
	return out
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot lists every registered connection, oldest first
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, ConnectionInfo{
			ID:          conn.ID,
			UserID:      conn.UserID,
			Role:        conn.Role,
			Device:      conn.Device,
			RemoteIP:    conn.RemoteIP,
			ConnectedAt: conn.ConnectedAt,
			LastSeen:    conn.LastSeen(),
			Channels:    sortedKeys(conn.channels),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
