package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/runforge/runforge/internal/config"
)

func testClient(server *httptest.Server, apiKey string) *Client {
	return NewClient(config.EngineConfig{
		BaseURL:   server.URL,
		PublicURL: "http://public.local",
		APIKey:    apiKey,
		Username:  "admin",
		Password:  "pw",
		TimeoutS:  5,
	})
}

func TestCreateWorkflowSanitizesNodes(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workflows" {
			t.Errorf("path = %s, want /api/v1/workflows", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		fmt.Fprint(w, `{"id":"abc123"}`)
	}))
	defer server.Close()

	doc := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{
				"type":        "n8n-nodes-base.telegram",
				"typeVersion": 1.0,
				"credentials": map[string]interface{}{"telegramApi": map[string]interface{}{"id": "c1"}},
			},
		},
	}

	id, err := testClient(server, "").CreateWorkflow(context.Background(), doc)
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}

	if received["name"] != "Untitled Workflow" {
		t.Errorf("name = %v, want Untitled Workflow default", received["name"])
	}
	nodes := received["nodes"].([]interface{})
	node := nodes[0].(map[string]interface{})
	if node["id"] == nil || node["id"] == "" {
		t.Error("missing node id not defaulted")
	}
	if node["name"] != "Node" {
		t.Errorf("node name = %v, want Node default", node["name"])
	}
	if node["parameters"] == nil {
		t.Error("missing parameters not defaulted")
	}
	if node["credentials"] == nil {
		t.Error("credentials dropped by sanitization")
	}
	if received["connections"] == nil || received["settings"] == nil {
		t.Error("connections/settings not defaulted")
	}
}

func TestRequestAuthHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-N8N-API-KEY")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	// API key present: key header, no basic auth.
	if _, err := testClient(server, "sekrit").ListExecutions(context.Background(), ""); err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if gotAPIKey != "sekrit" {
		t.Errorf("api key header = %q, want sekrit", gotAPIKey)
	}
	if gotAuth != "" {
		t.Errorf("authorization header = %q, want empty when api key is set", gotAuth)
	}

	// No API key: basic auth.
	if _, err := testClient(server, "").ListExecutions(context.Background(), ""); err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if gotAPIKey != "" {
		t.Errorf("api key header = %q, want empty", gotAPIKey)
	}
	if gotAuth == "" {
		t.Error("basic auth header missing")
	}
}

func TestAPIErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"unauthorized"}`)
	}))
	defer server.Close()

	_, err := testClient(server, "").GetWorkflow(context.Background(), "wf-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
}

func TestActivateWorkflowReportsFailureWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	if ok := testClient(server, "").ActivateWorkflow(context.Background(), "wf-1"); ok {
		t.Error("ActivateWorkflow = true, want false on engine rejection")
	}
}

func TestIDDecodesStringsAndNumbers(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"id":"pKmBKvmQ"}`, "pKmBKvmQ"},
		{`{"id": 42}`, "42"},
		{`{"id":"42"}`, "42"},
	}
	for _, tc := range cases {
		var res createdResource
		if err := json.Unmarshal([]byte(tc.raw), &res); err != nil {
			t.Errorf("unmarshal %s failed: %v", tc.raw, err)
			continue
		}
		if res.ID.String() != tc.want {
			t.Errorf("id from %s = %q, want %q", tc.raw, res.ID, tc.want)
		}
	}

	var res createdResource
	if err := json.Unmarshal([]byte(`{"id": {"nested": true}}`), &res); err == nil {
		t.Error("object id should fail to decode")
	}
}

func TestListExecutionsFilterAndViewURL(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"data":[{"id": 9, "status": "success"}]}`)
	}))
	defer server.Close()

	client := testClient(server, "")
	list, err := client.ListExecutions(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if gotQuery != "workflowId=wf-1" {
		t.Errorf("query = %q, want workflowId=wf-1", gotQuery)
	}
	if len(list.Data) != 1 || list.Data[0].ID.String() != "9" {
		t.Errorf("list = %+v, want one entry with id 9", list.Data)
	}

	if url := client.ViewURL("wf-1"); url != "http://public.local/workflow/wf-1" {
		t.Errorf("ViewURL = %q", url)
	}
}

func TestListExecutionsEscapesWorkflowID(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.URL.Query().Get("workflowId")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	client := testClient(server, "")
	if _, err := client.ListExecutions(context.Background(), "wf 1&next=2"); err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if gotID != "wf 1&next=2" {
		t.Errorf("workflowId = %q, want the raw id round-tripped", gotID)
	}
}
