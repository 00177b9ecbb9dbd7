package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity/cache"
	oaauth "github.com/viant/outlook-node/auth"
)

// Manager provides authenticated Graph clients per account alias.
type Manager struct {
	clientID   string
	storageDir string
	auth       *oaauth.Service
	// mu guards the three maps below; handlers and background logins touch
	// them concurrently.
	mu sync.RWMutex
	// pending holds device-code prompts keyed by account alias.
	pending map[string]*pendingAuth
	// clients caches REST clients per alias+tenant+scopes.
	clients map[string]*Client
	// creds caches device code credentials per namespace+alias, kept in
	// memory until process restart.
	creds map[string]*azidentity.DeviceCodeCredential
}

// pendingAuth carries the device-code prompt between the login goroutine
// that receives it and the handler goroutines polling for it.
type pendingAuth struct {
	mu      sync.Mutex
	message string
}

func (p *pendingAuth) set(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

func (p *pendingAuth) get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

func NewManager(clientID, storageDir string) *Manager {
	return &Manager{
		clientID:   clientID,
		storageDir: expandPath(storageDir),
		auth:       oaauth.New(),
		pending:    map[string]*pendingAuth{},
		clients:    map[string]*Client{},
		creds:      map[string]*azidentity.DeviceCodeCredential{},
	}
}

// Client returns a REST client whose requests carry a bearer token minted
// from the alias's cached device-code credential.
func (m *Manager) Client(ctx context.Context, alias, tenantID string, scopes []string, prompt func(string)) (*Client, error) {
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	key := m.clientKey(ns, alias, tenantID, scopes)
	m.mu.RLock()
	if cli, ok := m.clients[key]; ok {
		m.mu.RUnlock()
		return cli, nil
	}
	m.mu.RUnlock()

	cred, err := m.Credential(ctx, alias, tenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	token := func(ctx context.Context) (string, error) {
		tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
		if err != nil {
			return "", err
		}
		return tok.Token, nil
	}
	client := NewClient(BaseURL, nil, token)
	m.mu.Lock()
	// Double-check in case another goroutine created it meanwhile.
	if existing, ok := m.clients[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.clients[key] = client
	m.mu.Unlock()
	return client, nil
}

// Credential returns a cached DeviceCodeCredential for alias, acquiring and
// caching if needed.
func (m *Manager) Credential(ctx context.Context, alias, tenantID string, scopes []string, prompt func(string)) (*azidentity.DeviceCodeCredential, error) {
	key := m.credKey(ctx, alias)
	m.mu.RLock()
	if c := m.creds[key]; c != nil {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()
	cred, _, err := m.acquireCredential(ctx, alias, tenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if existing := m.creds[key]; existing != nil {
		m.mu.Unlock()
		return existing, nil
	}
	m.creds[key] = cred
	m.mu.Unlock()
	return cred, nil
}

func (m *Manager) credKey(ctx context.Context, alias string) string {
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	return ns + "|" + alias
}

// clientKey builds a stable cache key from alias, tenantID, and normalized scopes.
func (m *Manager) clientKey(ns, alias, tenantID string, scopes []string) string {
	if len(scopes) > 0 {
		norm := make([]string, 0, len(scopes))
		for _, s := range scopes {
			if s == "" {
				continue
			}
			norm = append(norm, strings.ToLower(s))
		}
		sort.Strings(norm)
		scopes = norm
	}
	if ns == "" {
		ns = "default"
	}
	return ns + "|" + alias + "|" + tenantID + "|" + strings.Join(scopes, ",")
}

func (m *Manager) authRecordPath(ns, alias string) string {
	return filepath.Join(m.storageDir, fmt.Sprintf("%s_%s_auth_record.json", safePart(ns), safePart(alias)))
}

func safePart(s string) string {
	s = strings.TrimSpace(os.ExpandEnv(s))
	// Replace characters unsafe for filenames or caches
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "|", "_", " ", "_", "@", "_")
	return repl.Replace(s)
}

// ensureDirs creates the storage dir; the path itself is expanded once at
// construction so concurrent logins never write Manager state.
func (m *Manager) ensureDirs() error {
	if m.storageDir == "" {
		return errors.New("storageDir is required")
	}
	return os.MkdirAll(m.storageDir, 0o700)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}

// NeedsInteractive checks quickly (non-interactive) whether a device flow is required.
func (m *Manager) NeedsInteractive(ctx context.Context, alias, tenantID string, scopes []string) bool {
	if err := m.ensureDirs(); err != nil {
		return true
	}
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	recPath := m.authRecordPath(ns, alias)
	var rec azidentity.AuthenticationRecord
	haveRec := false
	if b, err := os.ReadFile(recPath); err == nil {
		_ = json.Unmarshal(b, &rec)
		haveRec = true
	}
	aCache, err := cache.New(&cache.Options{Name: "outlook-node-" + safePart(ns) + "-" + safePart(alias)})
	if err != nil {
		return true
	}
	opts := &azidentity.DeviceCodeCredentialOptions{
		TenantID:   tenantID,
		ClientID:   m.clientID,
		Cache:      aCache,
		UserPrompt: func(context.Context, azidentity.DeviceCodeMessage) error { return nil },
	}
	if haveRec {
		opts.AuthenticationRecord = rec
	}
	cred, err := azidentity.NewDeviceCodeCredential(opts)
	if err != nil {
		return true
	}
	ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = cred.GetToken(ctx2, policy.TokenRequestOptions{Scopes: scopes})
	return err != nil
}

// HasAuthRecord reports whether an auth record exists for alias.
func (m *Manager) HasAuthRecord(ctx context.Context, alias string) bool {
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	_, err := os.Stat(m.authRecordPath(ns, alias))
	return err == nil
}

// StartDeviceLogin launches the device code authentication in background.
// It stores the prompt message to be retrievable via DevicePrompt.
func (m *Manager) StartDeviceLogin(ctx context.Context, alias, tenantID string, scopes []string, onComplete func()) {
	m.mu.Lock()
	if _, ok := m.pending[alias]; ok {
		m.mu.Unlock()
		return
	}
	holder := &pendingAuth{}
	m.pending[alias] = holder
	m.mu.Unlock()
	go func() {
		prompt := func(msg string) { holder.set(msg) }
		if _, _, err := m.acquireCredential(ctx, alias, tenantID, scopes, prompt); err == nil {
			if onComplete != nil {
				onComplete()
			}
		}
		m.mu.Lock()
		delete(m.pending, alias)
		m.mu.Unlock()
	}()
}

// acquireCredential performs the device code flow. If an auth record exists,
// it is used for silent login first.
func (m *Manager) acquireCredential(ctx context.Context, alias, tenantID string, scopes []string, prompt func(string)) (*azidentity.DeviceCodeCredential, azidentity.AuthenticationRecord, error) {
	if err := m.ensureDirs(); err != nil {
		return nil, azidentity.AuthenticationRecord{}, err
	}
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	recPath := m.authRecordPath(ns, alias)
	var rec azidentity.AuthenticationRecord
	haveRec := false
	if b, err := os.ReadFile(recPath); err == nil {
		_ = json.Unmarshal(b, &rec)
		haveRec = true
	}

	// Persist tokens via azidentity/cache (Keychain on macOS).
	aCache, err := cache.New(&cache.Options{Name: "outlook-node-" + safePart(ns) + "-" + safePart(alias)})
	if err != nil {
		return nil, azidentity.AuthenticationRecord{}, err
	}
	// Always provide a prompt callback (to avoid SDK printing to stdout and
	// to surface the device code message via our UI when interaction is needed).
	var userPrompt = func(_ context.Context, m azidentity.DeviceCodeMessage) error {
		if prompt != nil {
			prompt(m.Message)
		}
		return nil
	}
	opts := &azidentity.DeviceCodeCredentialOptions{
		TenantID:   tenantID,
		ClientID:   m.clientID,
		Cache:      aCache,
		UserPrompt: userPrompt,
	}
	if haveRec {
		opts.AuthenticationRecord = rec
	}
	cred, err := azidentity.NewDeviceCodeCredential(opts)
	if err != nil {
		return nil, azidentity.AuthenticationRecord{}, err
	}

	if haveRec {
		// Quick silent token preflight; fall back to the interactive flow
		// (invoking the prompt with a device code) and persist a fresh record.
		tctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		_, preErr := cred.GetToken(tctx, policy.TokenRequestOptions{Scopes: scopes})
		cancel()
		if preErr != nil {
			rec, err = cred.Authenticate(ctx, &policy.TokenRequestOptions{Scopes: scopes})
			if err != nil {
				return nil, azidentity.AuthenticationRecord{}, err
			}
			m.saveAuthRecord(recPath, ns, alias, rec)
		}
	} else {
		// No record: perform interactive device login and persist record.
		rec, err = cred.Authenticate(ctx, &policy.TokenRequestOptions{Scopes: scopes})
		if err != nil {
			return nil, azidentity.AuthenticationRecord{}, err
		}
		m.saveAuthRecord(recPath, ns, alias, rec)
	}
	return cred, rec, nil
}

func (m *Manager) saveAuthRecord(recPath, ns, alias string, rec azidentity.AuthenticationRecord) {
	if b, err := json.Marshal(rec); err == nil {
		_ = os.WriteFile(recPath, b, 0o600)
		if nodeDebug() {
			log.Printf("[outlook-node] saved auth record; ns=%s alias=%s path=%s", ns, alias, recPath)
		}
	}
}

func nodeDebug() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTLOOK_NODE_DEBUG")))
	return v != "" && v != "0" && v != "false"
}

// DevicePrompt returns the last device-code prompt message for alias.
func (m *Manager) DevicePrompt(alias string) string {
	m.mu.RLock()
	p, ok := m.pending[alias]
	m.mu.RUnlock()
	if ok {
		return p.get()
	}
	return ""
}

// DefaultScopes returns the delegated scope set for mailbox operations.
func DefaultScopes() []string {
	return []string{
		"https://graph.microsoft.com/.default",
	}
}
