package devin

import (
	"context"

	"github.com/zjrosen/agentbridge/internal/cachemanager"
	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

// SessionRegistry caches the last observed status and title of every
// session seen by one Agent. Entries never expire; the remote service
// stays authoritative.
type SessionRegistry struct {
	cache cachemanager.CacheManager[string, client.SessionInfo]
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		cache: cachemanager.NewInMemoryCacheManager[string, client.SessionInfo](
			"devin-sessions", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Observe records a session once both its status and title are known.
// A response without a title refreshes the status of a session that is
// already registered and is otherwise ignored.
func (r *SessionRegistry) Observe(info client.SessionInfo) {
	if info.ID == "" || info.Status == "" {
		return
	}
	ctx := context.Background()
	if info.Title == "" {
		if _, found := r.cache.Get(ctx, info.ID); !found {
			return
		}
	}
	r.cache.Update(ctx, info.ID, func(current client.SessionInfo, found bool) client.SessionInfo {
		title := info.Title
		if title == "" && found {
			title = current.Title
		}
		return client.SessionInfo{ID: info.ID, Status: info.Status, Title: title}
	})
	log.Debug(log.CatSession, "session observed", "id", info.ID, "status", info.Status)
}

// ObserveAll records every session in infos.
func (r *SessionRegistry) ObserveAll(infos []client.SessionInfo) {
	for _, info := range infos {
		r.Observe(info)
	}
}

// Get returns the cached entry for id.
func (r *SessionRegistry) Get(id string) (client.SessionInfo, bool) {
	return r.cache.Get(context.Background(), id)
}

// Snapshot returns a copy of every entry keyed by session id.
func (r *SessionRegistry) Snapshot() map[string]client.SessionInfo {
	return r.cache.Items(context.Background())
}

// Len returns the number of known sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.Len()
}
