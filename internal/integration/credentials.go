package integration

import "sync"

// ClientCredentials is the Spotify application credential pair issued by the backend.
//
// It is kept in memory for the process lifetime and never persisted.
type ClientCredentials struct {
	mu     sync.RWMutex
	id     string
	secret string
}

// Get returns the cached pair. Both values are empty until [ClientCredentials.Set] is called.
func (c *ClientCredentials) Get() (id, secret string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id, c.secret
}

func (c *ClientCredentials) Set(id, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id, c.secret = id, secret
}

func (c *ClientCredentials) Reset() {
	c.Set("", "")
}
