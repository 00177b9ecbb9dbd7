package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func staticToken(tok string) TokenProvider {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestFetchAll_FollowsNextLink(t *testing.T) {
	pages := map[string][][]string{
		"":      {{"a", "b"}},
		"page2": {{"c", "d"}},
		"page3": {{"e"}},
	}
	next := map[string]string{"": "page2", "page2": "page3"}
	var srv *httptest.Server
	var gotAuth []string
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		cursor := r.URL.Query().Get("cursor")
		body := map[string]any{}
		var records []map[string]any
		for _, id := range pages[cursor][0] {
			records = append(records, map[string]any{"id": id})
		}
		body["value"] = records
		if n, ok := next[cursor]; ok {
			body["@odata.nextLink"] = srv.URL + "/messages?cursor=" + n
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client(), staticToken("TOK"))
	records, err := client.FetchAll(context.Background(), "value", http.MethodGet, "/messages", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	want := []string{"a", "b", "c", "d", "e"}
	for i, record := range records {
		if record["id"] != want[i] {
			t.Fatalf("record %d: expected id %q, got %v", i, want[i], record["id"])
		}
	}
	if len(gotAuth) != 3 {
		t.Fatalf("expected 3 page requests, got %d", len(gotAuth))
	}
	for _, auth := range gotAuth {
		if auth != "Bearer TOK" {
			t.Fatalf("unexpected authorization header: %q", auth)
		}
	}
}

func TestCall_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound","message":"The specified object was not found."}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client(), staticToken("TOK"))
	_, err := client.Call(context.Background(), http.MethodGet, "/messages/nope", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Code != "ErrorItemNotFound" {
		t.Fatalf("unexpected code: %q", apiErr.Code)
	}
	if apiErr.Message == "" {
		t.Fatalf("expected server message to be surfaced")
	}
}

func TestCall_EmptyBodyYieldsEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client(), staticToken("TOK"))
	out, err := client.Call(context.Background(), http.MethodDelete, "/messages/m1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
}

func TestCall_QueryParameters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client(), staticToken("TOK"))
	query := map[string][]string{"$top": {"10"}, "$select": {"id,subject"}}
	if _, err := client.Call(context.Background(), http.MethodGet, "/messages", query, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "%24select=id%2Csubject&%24top=10" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
}
