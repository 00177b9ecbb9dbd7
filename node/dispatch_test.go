package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/viant/outlook-node/graph"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher()
	if err != nil {
		t.Fatalf("dispatcher construction failed: %v", err)
	}
	return d
}

func testClient(t *testing.T, handler http.Handler) *graph.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	token := func(context.Context) (string, error) { return "TOK", nil }
	return graph.NewClient(srv.URL, srv.Client(), token)
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{JSON: map[string]any{"position": i}}
	}
	return out
}

func TestExecute_ContinueOnFail_KeepsCardinalityAndOrder(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound","message":"not found"}}`)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/messages/")
		fmt.Fprintf(w, `{"id":%q,"subject":"hello"}`, id)
	}))
	d := newDispatcher(t)
	response, err := d.Execute(context.Background(), &Request{
		Resource:       "message",
		Operation:      "get",
		Items:          items(3),
		Params:         &Params{PerItem: []map[string]any{{"messageId": "m0"}, {"messageId": "missing"}, {"messageId": "m2"}}},
		Client:         client,
		ContinueOnFail: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(response.Results))
	}
	for i, result := range response.Results {
		if result.Index != i {
			t.Fatalf("result %d carries origin index %d", i, result.Index)
		}
	}
	if response.Results[0].JSON["id"] != "m0" || response.Results[2].JSON["id"] != "m2" {
		t.Fatalf("unexpected success payloads: %v", response.Results)
	}
	if msg, _ := response.Results[1].JSON["error"].(string); msg == "" {
		t.Fatalf("expected error record at index 1, got %v", response.Results[1].JSON)
	}
}

func TestExecute_AbortStopsRemainingItems(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":"ErrorInvalidRequest","message":"bad"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"ok"}`)
	}))
	d := newDispatcher(t)
	perItem := []map[string]any{
		{"messageId": "m0"}, {"messageId": "m1"}, {"messageId": "bad"},
		{"messageId": "m3"}, {"messageId": "m4"},
	}
	_, err := d.Execute(context.Background(), &Request{
		Resource:  "message",
		Operation: "get",
		Items:     items(5),
		Params:    &Params{PerItem: perItem},
		Client:    client,
	})
	if err == nil {
		t.Fatalf("expected the batch to abort")
	}
	if !strings.Contains(err.Error(), "item 2") {
		t.Fatalf("expected failing index in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected processing to stop after item 2, server saw %d calls", got)
	}
}

func TestExecute_GetMime_MergesBinary(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/m1/$value" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "message/rfc822")
		fmt.Fprint(w, "raw mime")
	}))
	d := newDispatcher(t)
	input := []Item{{
		JSON:   map[string]any{"id": "m1"},
		Binary: map[string]Binary{"invoice": {Data: []byte("pdf"), FileName: "invoice.pdf"}},
	}}
	response, err := d.Execute(context.Background(), &Request{
		Resource:  "message",
		Operation: "getMime",
		Items:     input,
		Params:    &Params{Global: map[string]any{"messageId": "m1"}},
		Client:    client,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Items) != 1 {
		t.Fatalf("expected the input sequence back, got %d items", len(response.Items))
	}
	binary := response.Items[0].Binary
	if _, ok := binary["invoice"]; !ok {
		t.Fatalf("pre-existing binary field was dropped: %v", binary)
	}
	mime, ok := binary["data"]
	if !ok {
		t.Fatalf("expected new binary field %q, got %v", "data", binary)
	}
	if mime.FileName != "m1.eml" {
		t.Fatalf("unexpected synthesized file name: %q", mime.FileName)
	}
	if mime.MimeType != "message/rfc822" {
		t.Fatalf("unexpected MIME type: %q", mime.MimeType)
	}
	if string(mime.Data) != "raw mime" {
		t.Fatalf("unexpected MIME content: %q", mime.Data)
	}
}

func TestExecute_MutationFailureOverwritesJSON(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound","message":"gone"}}`)
	}))
	d := newDispatcher(t)
	input := []Item{{
		JSON:   map[string]any{"id": "m1"},
		Binary: map[string]Binary{"invoice": {Data: []byte("pdf")}},
	}}
	response, err := d.Execute(context.Background(), &Request{
		Resource:       "message",
		Operation:      "getMime",
		Items:          input,
		Params:         &Params{Global: map[string]any{"messageId": "m1"}},
		Client:         client,
		ContinueOnFail: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(response.Items))
	}
	if msg, _ := response.Items[0].JSON["error"].(string); msg == "" {
		t.Fatalf("expected JSON to be overwritten with the error marker, got %v", response.Items[0].JSON)
	}
	if _, ok := response.Items[0].Binary["invoice"]; !ok {
		t.Fatalf("binary identity must survive a mutation failure")
	}
}

func TestExecute_MutationIsPositionalAcrossItems(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound","message":"gone"}}`)
			return
		}
		id := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/$value"), "/messages/")
		w.Header().Set("Content-Type", "message/rfc822")
		fmt.Fprintf(w, "mime for %s", id)
	}))
	d := newDispatcher(t)
	input := []Item{
		{JSON: map[string]any{"id": "m0"}},
		{JSON: map[string]any{"id": "gone"}, Binary: map[string]Binary{"invoice": {Data: []byte("pdf")}}},
		{JSON: map[string]any{"id": "m2"}},
	}
	response, err := d.Execute(context.Background(), &Request{
		Resource:  "message",
		Operation: "getMime",
		Items:     input,
		Params: &Params{PerItem: []map[string]any{
			{"messageId": "m0"}, {"messageId": "missing"}, {"messageId": "m2"},
		}},
		Client:         client,
		ContinueOnFail: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Items) != 3 {
		t.Fatalf("mutation must keep item cardinality, got %d", len(response.Items))
	}
	for i, id := range []string{"m0", "", "m2"} {
		if id == "" {
			continue
		}
		bin, ok := response.Items[i].Binary["data"]
		if !ok {
			t.Fatalf("item %d: expected enriched binary, got %v", i, response.Items[i].Binary)
		}
		if bin.FileName != id+".eml" || string(bin.Data) != "mime for "+id {
			t.Fatalf("item %d carries another item's payload: %+v", i, bin)
		}
		if response.Items[i].JSON["id"] != id {
			t.Fatalf("item %d JSON reshuffled: %v", i, response.Items[i].JSON)
		}
	}
	if msg, _ := response.Items[1].JSON["error"].(string); msg == "" {
		t.Fatalf("failed item must carry the error marker at its position, got %v", response.Items[1].JSON)
	}
	if _, ok := response.Items[1].Binary["invoice"]; !ok {
		t.Fatalf("failed item must keep its binary identity")
	}
}

func TestExecute_ReturnAllPaginates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		if r.URL.Query().Get("cursor") == "" {
			if got := r.URL.Query().Get("$top"); got != "" {
				t.Errorf("returnAll must not bound the page size, got $top=%s", got)
			}
			body["value"] = []map[string]any{{"id": "f1"}, {"id": "f2"}}
			body["@odata.nextLink"] = srv.URL + "/mailFolders?cursor=2"
		} else {
			body["value"] = []map[string]any{{"id": "f3"}}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()
	token := func(context.Context) (string, error) { return "TOK", nil }
	client := graph.NewClient(srv.URL, srv.Client(), token)

	d := newDispatcher(t)
	response, err := d.Execute(context.Background(), &Request{
		Resource:  "folder",
		Operation: "getAll",
		Items:     items(1),
		Params:    &Params{Global: map[string]any{"returnAll": true}},
		Client:    client,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Results) != 3 {
		t.Fatalf("expected all pages flattened, got %d results", len(response.Results))
	}
	for _, result := range response.Results {
		if result.Index != 0 {
			t.Fatalf("list records must carry the originating item index, got %d", result.Index)
		}
	}
}

func TestExecute_LimitBoundsSingleRequest(t *testing.T) {
	var gotTop string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTop = r.URL.Query().Get("$top")
		fmt.Fprint(w, `{"value":[{"id":"f1"}]}`)
	}))
	d := newDispatcher(t)
	response, err := d.Execute(context.Background(), &Request{
		Resource:  "folder",
		Operation: "getAll",
		Items:     items(1),
		Params:    &Params{Global: map[string]any{"limit": 5}},
		Client:    client,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTop != "5" {
		t.Fatalf("expected $top=5, got %q", gotTop)
	}
	if len(response.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(response.Results))
	}
}

func TestExecute_BulkDownloadShortCircuits(t *testing.T) {
	var listCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		fmt.Fprint(w, `{"value":[{"id":"m1","hasAttachments":true},{"id":"m2","hasAttachments":false}]}`)
	})
	mux.HandleFunc("/messages/m1/attachments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"a1"}]}`)
	})
	mux.HandleFunc("/messages/m1/attachments/a1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"a1","name":"notes.txt","contentType":"text/plain"}`)
	})
	mux.HandleFunc("/messages/m1/attachments/a1/$value", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "attachment body")
	})
	client := testClient(t, mux)
	d := newDispatcher(t)
	response, err := d.Execute(context.Background(), &Request{
		Resource:  "message",
		Operation: "getAll",
		Items:     items(2),
		Params:    &Params{Global: map[string]any{"downloadAttachments": true}},
		Client:    client,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&listCalls); got != 1 {
		t.Fatalf("bulk download must short-circuit after the first item, server saw %d list calls", got)
	}
	if len(response.Results) != 2 {
		t.Fatalf("expected the combined batch, got %d results", len(response.Results))
	}
	bin, ok := response.Results[0].Binary["attachment_0"]
	if !ok {
		t.Fatalf("expected attachment_0 binary on the first message, got %v", response.Results[0].Binary)
	}
	if bin.FileName != "notes.txt" || string(bin.Data) != "attachment body" {
		t.Fatalf("unexpected attachment payload: %+v", bin)
	}
	if response.Results[1].Binary != nil {
		t.Fatalf("message without attachments must carry no binary")
	}
}

func TestExecute_AttachmentAddValidation(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("validation failures must not reach the server")
	}))
	d := newDispatcher(t)
	_, err := d.Execute(context.Background(), &Request{
		Resource:  "messageAttachment",
		Operation: "add",
		Items:     items(1),
		Params:    &Params{Global: map[string]any{"messageId": "m1"}},
		Client:    client,
	})
	if err == nil || !strings.Contains(err.Error(), "binary property") {
		t.Fatalf("expected missing binary property error, got %v", err)
	}
}

func TestExecute_UnknownOperation(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.Execute(context.Background(), &Request{Resource: "message", Operation: "explode"})
	if err == nil || !strings.Contains(err.Error(), "unsupported operation") {
		t.Fatalf("expected unsupported operation error, got %v", err)
	}
}

func TestRegistryCoversDeclaredSchema(t *testing.T) {
	reg, err := newRegistry()
	if err != nil {
		t.Fatalf("registry construction failed: %v", err)
	}
	for _, resource := range Resources() {
		for _, operation := range Operations(resource) {
			if _, err := reg.lookup(resource, operation); err != nil {
				t.Fatalf("declared operation %s.%s has no handler: %v", resource, operation, err)
			}
		}
	}
}
