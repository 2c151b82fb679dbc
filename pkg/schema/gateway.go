package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/observability"
)

// Pointer and reference field types understood by the engines.
const (
	FieldTypePointer   = "Pointer"
	FieldTypeRelation  = "Relation"
	FieldTypeReference = "Reference"
)

// Field describes one column of a dynamic table.
type Field struct {
	Type        string `json:"type"`
	TargetClass string `json:"targetClass,omitempty"`
}

// Definition is the remote schema of one dynamic table.
type Definition struct {
	ClassName   string             `json:"className,omitempty"`
	Fields      map[string]Field   `json:"fields,omitempty"`
	Permissions *acl.PermissionSet `json:"classLevelPermissions,omitempty"`
}

// StatusError reports a non-200 response from the schema endpoint.
type StatusError struct {
	Method string
	Table  string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("schema %s %s: status %d", e.Method, e.Table, e.Code)
}

// Gateway is the schema administration surface consumed by the engines.
type Gateway interface {
	// Fetch probes a table's schema. Any transport failure or non-200
	// response yields (nil, nil): callers use this to test existence
	// and must treat absence as an empty schema.
	Fetch(ctx context.Context, table string) (*Definition, error)

	// Apply creates the table's schema, retrying once as an update when
	// creation is rejected. A failure here is the caller's problem.
	Apply(ctx context.Context, table string, def *Definition) error

	// Delete drops the table's schema. Returns an error on non-200;
	// cascade callers swallow it as best-effort cleanup.
	Delete(ctx context.Context, table string) error
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	serverURL string
	appID     string
	masterKey string
	http      *http.Client
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithMetrics attaches request metrics.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a schema gateway client.
func NewClient(serverURL, appID, masterKey string, logger *observability.Logger, opts ...ClientOption) *Client {
	c := &Client{
		serverURL: serverURL,
		appID:     appID,
		masterKey: masterKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch probes a table's schema, swallowing every failure.
func (c *Client) Fetch(ctx context.Context, table string) (*Definition, error) {
	resp, err := c.do(ctx, http.MethodGet, table, nil)
	if err != nil {
		c.logger.WithError(err).WithField("table", table).Debug("schema probe failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var def Definition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		c.logger.WithError(err).WithField("table", table).Warn("undecodable schema response")
		return nil, nil
	}
	return &def, nil
}

// Apply pushes a schema patch, falling back from create to update when
// the table already exists.
func (c *Client) Apply(ctx context.Context, table string, def *Definition) error {
	if err := c.send(ctx, http.MethodPost, table, def); err != nil {
		return c.send(ctx, http.MethodPut, table, def)
	}
	return nil
}

// Delete drops a table's schema.
func (c *Client) Delete(ctx context.Context, table string) error {
	return c.send(ctx, http.MethodDelete, table, nil)
}

func (c *Client) send(ctx context.Context, method, table string, def *Definition) error {
	resp, err := c.do(ctx, method, table, def)
	if err != nil {
		return fmt.Errorf("schema %s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: method, Table: table, Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, table string, def *Definition) (*http.Response, error) {
	var body *bytes.Reader
	if def != nil {
		payload, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema payload: %w", err)
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+"/schemas/"+table, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Application-Id", c.appID)
	req.Header.Set("X-Master-Key", c.masterKey)

	resp, err := c.http.Do(req)
	if c.metrics != nil {
		status := "error"
		if err == nil {
			status = fmt.Sprintf("%d", resp.StatusCode)
		}
		c.metrics.SchemaRequestsTotal.WithLabelValues(method, status).Inc()
	}
	return resp, err
}
