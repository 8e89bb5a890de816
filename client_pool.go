// client_pool.go
// ---------------
// The clientPool owns the single shared *http.Client every dispatch goes
// through. The client is built lazily under a guarded check so concurrent
// first callers construct exactly one, and Close tears it down in a way that
// lets a later acquire rebuild it. Long-running processes use that to cycle
// connections after a fatal transport error.
package relaykit

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

type clientPool struct {
	mu     sync.Mutex
	cfg    *Config
	client *http.Client
}

func newClientPool(cfg *Config) *clientPool {
	return &clientPool{cfg: cfg}
}

// acquire returns the shared client, building it on first use. Safe for
// concurrent callers; exactly one client exists between Close calls.
func (p *clientPool) acquire() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		p.client = p.build()
	}
	return p.client
}

func (p *clientPool) build() *http.Client {
	if p.cfg.Transport != nil {
		return &http.Client{Transport: p.cfg.Transport}
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		MaxConnsPerHost:     p.cfg.PoolSize,
		MaxIdleConns:        p.cfg.MaxKeepalive,
		MaxIdleConnsPerHost: p.cfg.MaxKeepalive,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: p.cfg.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Overall deadlines come from the per-dispatch context, so the client
	// itself carries no timeout.
	return &http.Client{Transport: transport}
}

// close releases idle connections and drops the client. A subsequent acquire
// rebuilds it.
func (p *clientPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return
	}
	if transport, ok := p.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	p.client = nil
}
