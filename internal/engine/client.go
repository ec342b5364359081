// Package engine is the REST client for the external workflow engine. The
// engine is an unreliable remote service; every call can fail and callers
// must treat results accordingly.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/config"
)

// Client talks to the external workflow engine's HTTP API. Construct one
// instance and inject it; there is no package-level client.
type Client struct {
	baseURL    string
	publicURL  string
	apiKey     string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates an engine client from configuration.
func NewClient(cfg config.EngineConfig) *Client {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		apiKey:     cfg.APIKey,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// request performs an HTTP request against the engine API and decodes the
// JSON response into result when non-nil.
func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-N8N-API-KEY", c.apiKey)
	} else {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// sanitizeNodes strips every node down to the fields the engine's create
// API accepts, filling required defaults.
func sanitizeNodes(nodes []interface{}) []map[string]interface{} {
	clean := make([]map[string]interface{}, 0, len(nodes))
	for _, raw := range nodes {
		node, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		id := node["id"]
		if id == nil || id == "" {
			id = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		name := node["name"]
		if name == nil || name == "" {
			name = "Node"
		}
		position := node["position"]
		if position == nil {
			position = []int{0, 0}
		}
		parameters := node["parameters"]
		if parameters == nil {
			parameters = map[string]interface{}{}
		}

		cleanNode := map[string]interface{}{
			"id":          fmt.Sprintf("%v", id),
			"name":        fmt.Sprintf("%v", name),
			"type":        node["type"],
			"typeVersion": node["typeVersion"],
			"position":    position,
			"parameters":  parameters,
		}
		if creds, ok := node["credentials"]; ok {
			cleanNode["credentials"] = creds
		}
		clean = append(clean, cleanNode)
	}
	return clean
}

// CreateWorkflow creates a new workflow in the engine from a document and
// returns the engine's workflow id.
func (c *Client) CreateWorkflow(ctx context.Context, doc map[string]interface{}) (string, error) {
	name, _ := doc["name"].(string)
	if name == "" {
		name = "Untitled Workflow"
	}
	nodes, _ := doc["nodes"].([]interface{})
	connections := doc["connections"]
	if connections == nil {
		connections = map[string]interface{}{}
	}
	settings := doc["settings"]
	if settings == nil {
		settings = map[string]interface{}{}
	}

	payload := map[string]interface{}{
		"name":        name,
		"nodes":       sanitizeNodes(nodes),
		"connections": connections,
		"settings":    settings,
	}

	var created createdResource
	if err := c.request(ctx, http.MethodPost, "/workflows", payload, &created); err != nil {
		return "", err
	}

	slog.Debug("Workflow created in engine", "workflow_id", created.ID.String())
	return created.ID.String(), nil
}

// ActivateWorkflow activates a workflow so its triggers fire. It reports
// activation success rather than returning an error: a failed activation
// degrades the run but does not abort it.
func (c *Client) ActivateWorkflow(ctx context.Context, workflowID string) bool {
	err := c.request(ctx, http.MethodPost, "/workflows/"+workflowID+"/activate", nil, nil)
	if err != nil {
		slog.Warn("Workflow activation failed", "workflow_id", workflowID, "error", err)
		return false
	}
	return true
}

// CreateCredential creates a credential in the engine and returns its id.
// The secret map is sent to the engine and never persisted locally.
func (c *Client) CreateCredential(ctx context.Context, name, credentialType string, data map[string]string) (string, error) {
	payload := map[string]interface{}{
		"name": name,
		"type": credentialType,
		"data": data,
	}

	var created createdResource
	if err := c.request(ctx, http.MethodPost, "/credentials", payload, &created); err != nil {
		return "", fmt.Errorf("credential creation failed: %w", err)
	}
	return created.ID.String(), nil
}

// GetWorkflow fetches a workflow's topology document.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.request(ctx, http.MethodGet, "/workflows/"+workflowID, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListExecutions lists the engine's executions, most recent first,
// optionally filtered by workflow id.
func (c *Client) ListExecutions(ctx context.Context, workflowID string) (*ExecutionList, error) {
	path := "/executions"
	if workflowID != "" {
		path += "?workflowId=" + url.QueryEscape(workflowID)
	}

	var list ExecutionList
	if err := c.request(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetExecution fetches the engine's runtime document for one execution,
// containing per-node run records keyed by node name.
func (c *Client) GetExecution(ctx context.Context, executionID string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	path := "/executions/" + executionID + "?includeData=true"
	if err := c.request(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ViewURL returns a browser-reachable link to a workflow in the engine UI.
func (c *Client) ViewURL(workflowID string) string {
	return c.publicURL + "/workflow/" + workflowID
}
