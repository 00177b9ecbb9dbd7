package mcp

import (
	"sync"
)

// PendingAuth is one in-flight device login awaiting user interaction.
type PendingAuth struct {
	UUID      string
	Alias     string
	TenantID  string
	Namespace string
}

// PendingAuths indexes in-flight device logins by UUID and namespace.
type PendingAuths struct {
	mu   sync.RWMutex
	byID map[string]*PendingAuth
	byNS map[string]map[string]*PendingAuth
}

func NewPendingAuths() *PendingAuths {
	return &PendingAuths{byID: map[string]*PendingAuth{}, byNS: map[string]map[string]*PendingAuth{}}
}

func (p *PendingAuths) Put(x *PendingAuth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if x.Namespace == "" {
		x.Namespace = "default"
	}
	p.byID[x.UUID] = x
	m, ok := p.byNS[x.Namespace]
	if !ok {
		m = map[string]*PendingAuth{}
		p.byNS[x.Namespace] = m
	}
	m[x.UUID] = x
}

func (p *PendingAuths) Get(uuid string) (*PendingAuth, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	x, ok := p.byID[uuid]
	return x, ok
}

// Complete removes a finished login from both indexes.
func (p *PendingAuths) Complete(uuid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, ok := p.byID[uuid]
	if !ok {
		return
	}
	delete(p.byID, uuid)
	if m, ok := p.byNS[x.Namespace]; ok {
		delete(m, uuid)
		if len(m) == 0 {
			delete(p.byNS, x.Namespace)
		}
	}
}

// ListNamespace returns a snapshot of pending auths for a namespace.
func (p *PendingAuths) ListNamespace(ns string) []*PendingAuth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m := p.byNS[ns]
	out := make([]*PendingAuth, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// ClearNamespace removes all pending auths for a namespace and returns the
// cleared UUIDs.
func (p *PendingAuths) ClearNamespace(ns string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0)
	if m, ok := p.byNS[ns]; ok {
		for id := range m {
			delete(p.byID, id)
			ids = append(ids, id)
		}
		delete(p.byNS, ns)
	}
	return ids
}
