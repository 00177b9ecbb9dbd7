package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/scy"
	"github.com/viant/scy/cred"

	oaauth "github.com/viant/outlook-node/auth"
	"github.com/viant/outlook-node/graph"
	"github.com/viant/outlook-node/node"
)

// Service wires the graph manager and the operation dispatcher behind the
// node's tool surface.
type Service struct {
	graphMgr   *graph.Manager
	dispatcher *node.Dispatcher
	baseURL    string
	useText    bool
	pending    *PendingAuths
	auth       *oaauth.Service
	azure      *cred.Azure
	tenantID   string
	clientID   string
	storageDir string
}

func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	useText := !cfg.UseData
	// Optionally resolve the Azure OAuth2 client from a scy EncodedResource.
	var az *cred.Azure
	if cfg.AzureRef != "" {
		res := cfg.AzureRef.Decode(context.Background(), cred.Azure{})
		if sec, err := scy.New().Load(context.Background(), res); err == nil {
			if v, ok := sec.Target.(*cred.Azure); ok {
				az = v
			}
		}
	}
	clientID := cfg.ClientID
	if az != nil && az.ClientID != "" {
		clientID = az.ClientID
	}
	dispatcher, err := node.NewDispatcher()
	if err != nil {
		return nil, err
	}
	return &Service{
		graphMgr:   graph.NewManager(clientID, cfg.StorageDir),
		dispatcher: dispatcher,
		baseURL:    cfg.CallbackBaseURL,
		useText:    useText,
		pending:    NewPendingAuths(),
		auth:       oaauth.New(),
		azure:      az,
		tenantID:   cfg.TenantID,
		clientID:   clientID,
		storageDir: cfg.StorageDir,
	}, nil
}

// BinaryPayload carries one binary entry base64-encoded across the wire.
type BinaryPayload struct {
	Data     string `json:"data" description:"base64-encoded content"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ItemPayload is the wire form of one workflow item.
type ItemPayload struct {
	JSON   map[string]any           `json:"json,omitempty"`
	Binary map[string]BinaryPayload `json:"binary,omitempty"`
}

// ResultPayload is the wire form of one execution result.
type ResultPayload struct {
	JSON   map[string]any           `json:"json,omitempty"`
	Binary map[string]BinaryPayload `json:"binary,omitempty"`
	Index  int                      `json:"index"`
}

// ExecuteInput is one batch dispatch against a mailbox.
type ExecuteInput struct {
	Account        graph.Account    `json:"account"`
	Resource       string           `json:"resource" description:"draft | message | messageAttachment | folder | folderMessage"`
	Operation      string           `json:"operation"`
	Items          []ItemPayload    `json:"items,omitempty"`
	Parameters     map[string]any   `json:"parameters,omitempty"`
	ItemParameters []map[string]any `json:"itemParameters,omitempty" description:"per-item parameter overrides by position"`
	ContinueOnFail bool             `json:"continueOnFail,omitempty"`
}

// ExecuteOutput mirrors the dispatcher's output fork: results for
// accumulating operations, items for the in-place mutation operations.
type ExecuteOutput struct {
	Results []ResultPayload `json:"results,omitempty"`
	Items   []ItemPayload   `json:"items,omitempty"`
}

// ListCategoriesInput requests the mailbox master categories.
type ListCategoriesInput struct {
	Account graph.Account `json:"account"`
}

type ListCategoriesOutput struct {
	Categories []map[string]any `json:"categories,omitempty"`
}

// Execute dispatches one batch. An empty item list still runs zero
// iterations and returns an empty output, matching the per-item contract.
func (s *Service) Execute(ctx context.Context, in *ExecuteInput, scopes []string, prompt func(string)) (*ExecuteOutput, error) {
	client, err := s.graphMgr.Client(ctx, in.Account.Alias, in.Account.TenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(in.Items)
	if err != nil {
		return nil, err
	}
	response, err := s.dispatcher.Execute(ctx, &node.Request{
		Resource:       in.Resource,
		Operation:      in.Operation,
		Items:          items,
		Params:         &node.Params{Global: in.Parameters, PerItem: in.ItemParameters},
		Client:         client,
		ContinueOnFail: in.ContinueOnFail,
	})
	if err != nil {
		return nil, err
	}
	return encodeResponse(response), nil
}

// ListCategories returns the mailbox master categories (name/colour pairs).
func (s *Service) ListCategories(ctx context.Context, in *ListCategoriesInput, scopes []string, prompt func(string)) (*ListCategoriesOutput, error) {
	client, err := s.graphMgr.Client(ctx, in.Account.Alias, in.Account.TenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	categories, err := client.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &ListCategoriesOutput{Categories: categories}, nil
}

func decodeItems(payloads []ItemPayload) ([]node.Item, error) {
	items := make([]node.Item, 0, len(payloads))
	for i, payload := range payloads {
		item := node.Item{JSON: payload.JSON}
		if item.JSON == nil {
			item.JSON = map[string]any{}
		}
		if len(payload.Binary) > 0 {
			item.Binary = make(map[string]node.Binary, len(payload.Binary))
			for name, bin := range payload.Binary {
				data, err := base64.StdEncoding.DecodeString(bin.Data)
				if err != nil {
					return nil, fmt.Errorf("item %d binary %q: %w", i, name, err)
				}
				item.Binary[name] = node.Binary{Data: data, FileName: bin.FileName, MimeType: bin.MimeType}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func encodeBinary(binary map[string]node.Binary) map[string]BinaryPayload {
	if len(binary) == 0 {
		return nil
	}
	out := make(map[string]BinaryPayload, len(binary))
	for name, bin := range binary {
		out[name] = BinaryPayload{
			Data:     base64.StdEncoding.EncodeToString(bin.Data),
			FileName: bin.FileName,
			MimeType: bin.MimeType,
		}
	}
	return out
}

func encodeResponse(response *node.Response) *ExecuteOutput {
	out := &ExecuteOutput{}
	if response.Items != nil {
		out.Items = make([]ItemPayload, 0, len(response.Items))
		for _, item := range response.Items {
			out.Items = append(out.Items, ItemPayload{JSON: item.JSON, Binary: encodeBinary(item.Binary)})
		}
		return out
	}
	out.Results = make([]ResultPayload, 0, len(response.Results))
	for _, result := range response.Results {
		out.Results = append(out.Results, ResultPayload{JSON: result.JSON, Binary: encodeBinary(result.Binary), Index: result.Index})
	}
	return out
}

// RegisterHTTP mounts the device-login helper endpoints.
func (s *Service) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/outlook/auth/start", s.StartHandler())
	mux.HandleFunc("/outlook/auth/device/", s.DeviceHandler())
	mux.HandleFunc("/outlook/auth/pending", s.PendingListHandler())
	mux.HandleFunc("/outlook/auth/pending/clear", s.PendingClearHandler())
}

// StartHandler launches a background device login for an alias and redirects
// to the device page for that pending auth.
func (s *Service) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alias := r.URL.Query().Get("alias")
		if alias == "" {
			http.Error(w, "alias required", http.StatusBadRequest)
			return
		}
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			tenant = s.tenantID
		}
		ns, _ := s.auth.Namespace(r.Context())
		if ns == "" {
			ns = "default"
		}
		id := uuid.New().String()
		pend := &PendingAuth{UUID: id, Alias: alias, TenantID: tenant, Namespace: ns}
		s.pending.Put(pend)
		s.graphMgr.StartDeviceLogin(context.Background(), alias, tenant, graph.DefaultScopes(), func() {
			s.pending.Complete(id)
		})
		http.Redirect(w, r, "/outlook/auth/device/"+id, http.StatusFound)
	}
}

// DeviceHandler serves the device login page for a pending auth UUID.
func (s *Service) DeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// URL: /outlook/auth/device/{uuid}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 { // outlook auth device {uuid}
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		pend, ok := s.pending.Get(parts[3])
		if !ok {
			http.Error(w, "no pending auth", http.StatusNotFound)
			return
		}
		msg := s.graphMgr.DevicePrompt(pend.Alias)
		if msg == "" {
			deadline := time.Now().Add(8 * time.Second)
			for msg == "" && time.Now().Before(deadline) {
				time.Sleep(200 * time.Millisecond)
				msg = s.graphMgr.DevicePrompt(pend.Alias)
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if msg == "" {
			_, _ = fmt.Fprint(w, buildWaitingForDeviceHTML())
			return
		}
		_, _ = fmt.Fprint(w, buildDeviceLoginHTML(msg))
	}
}

// buildDeviceLoginHTML converts the Azure device prompt into a clickable HTML with copyable code.
func buildDeviceLoginHTML(msg string) string {
	url := "https://microsoft.com/devicelogin"
	code := ""
	if m := regexp.MustCompile(`https?://[^\s]+`).FindString(msg); m != "" {
		url = m
	}
	// Extract code (case-insensitive "code <VALUE>") allowing hyphens
	if m := regexp.MustCompile(`(?i)code\s+([A-Z0-9-]+)`).FindStringSubmatch(msg); len(m) == 2 {
		code = m[1]
	}
	escURL := html.EscapeString(url)
	escCode := html.EscapeString(code)
	if escCode == "" {
		escMsg := html.EscapeString(msg)
		return fmt.Sprintf(`<html><body>
<h3>Sign in to Outlook</h3>
<p>Open <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a> and follow the instructions.</p>
<pre>%[2]s</pre>
<p>Keep this tab open; return to your workflow after completing sign-in.</p>
</body></html>`, escURL, escMsg)
	}
	return fmt.Sprintf(`<html><body style="font-family: -apple-system, Segoe UI, Roboto, sans-serif;">
<h3>Sign in to Outlook</h3>
<p>Click to open: <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a></p>
<p>Then enter this code:</p>
<p style="font-size: 1.4em; font-weight: 600;"><code>%[2]s</code> <button onclick="navigator.clipboard.writeText('%[3]s')">Copy</button></p>
<p>Keep this tab open; return to your workflow after completing sign-in.</p>
</body></html>`, escURL, escCode, escCode)
}

func buildWaitingForDeviceHTML() string {
	url := html.EscapeString("https://microsoft.com/devicelogin")
	return fmt.Sprintf(`<!doctype html>
<html><head>
<meta http-equiv="refresh" content="2">
<meta charset="utf-8">
<title>Sign in to Outlook</title>
<style>body{font-family:-apple-system,Segoe UI,Roboto,sans-serif;margin:24px}</style>
</head><body>
<h3>Sign in to Outlook</h3>
<p>Preparing device login… this page refreshes automatically.</p>
<p>If it takes too long, you can open <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a> and follow the instructions.</p>
<p>Keep this tab open; return to your workflow after completing sign-in.</p>
</body></html>`, url)
}

// PendingListHandler returns JSON of pending auths for a namespace.
func (s *Service) PendingListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ns := r.URL.Query().Get("namespace")
		if ns == "" {
			if v, err := s.auth.Namespace(r.Context()); err == nil {
				ns = v
			}
		}
		if ns == "" {
			http.Error(w, "namespace required", http.StatusBadRequest)
			return
		}
		list := s.pending.ListNamespace(ns)
		type row struct{ UUID, Alias, TenantID, Namespace string }
		out := make([]row, 0, len(list))
		for _, v := range list {
			out = append(out, row{UUID: v.UUID, Alias: v.Alias, TenantID: v.TenantID, Namespace: v.Namespace})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// PendingClearHandler clears all pending auths for a namespace.
func (s *Service) PendingClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ns := r.URL.Query().Get("namespace")
		if ns == "" {
			if v, err := s.auth.Namespace(r.Context()); err == nil {
				ns = v
			}
		}
		if ns == "" {
			http.Error(w, "namespace required", http.StatusBadRequest)
			return
		}
		cleared := s.pending.ClearNamespace(ns)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"cleared": len(cleared), "uuids": cleared})
	}
}

func (s *Service) GraphManager() *graph.Manager { return s.graphMgr }
func (s *Service) UseTextField() bool           { return s.useText }
func (s *Service) BaseURL() string              { return s.baseURL }
func (s *Service) Pending() *PendingAuths       { return s.pending }
func (s *Service) TenantID() string             { return s.tenantID }
func (s *Service) ClientID() string             { return s.clientID }
func (s *Service) StorageDir() string           { return s.storageDir }
