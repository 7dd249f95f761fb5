package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/standardbeagle/ccindex/internal/service"
)

// Client connects to a remote IndexServer
type Client struct {
	httpClient *http.Client
	socketPath string
}

// NewClient connects to the server indexing root.
func NewClient(root string) *Client {
	return NewClientWithSocket(GetSocketPathForRoot(root))
}

// NewClientWithSocket creates a new client connection to the index server with a custom socket path
func NewClientWithSocket(socketPath string) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		httpClient: httpClient,
		socketPath: socketPath,
	}
}

// ServerError is a non-200 answer from the server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// call posts req as JSON to path and decodes the answer into resp.
func (c *Client) call(ctx context.Context, path string, req, resp any) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", c.socketPath, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(httpResp.Body)
		return &ServerError{Status: httpResp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning() bool {
	_, err := c.Ping(context.Background())
	return err == nil
}

// Ping sends a health check to the server
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var resp PingResponse
	if err := c.call(ctx, "/ping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status(ctx context.Context) (*service.Status, error) {
	var resp service.Status
	if err := c.call(ctx, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Complete(ctx context.Context, req service.CompleteRequest) (*service.CompleteResponse, error) {
	var resp service.CompleteResponse
	if err := c.call(ctx, "/complete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CallTip(ctx context.Context, req service.PositionRequest) (*service.CallTipResponse, error) {
	var resp service.CallTipResponse
	if err := c.call(ctx, "/calltip", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CurrentFunction(ctx context.Context, req service.PositionRequest) (*service.FunctionResponse, error) {
	var resp service.FunctionResponse
	if err := c.call(ctx, "/current_function", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Tokens(ctx context.Context, req service.TokensRequest) (*service.TokensResponse, error) {
	var resp service.TokensResponse
	if err := c.call(ctx, "/tokens", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) BufferFunctions(ctx context.Context, req service.BufferRequest) (*service.BufferFunctionsResponse, error) {
	var resp service.BufferFunctionsResponse
	if err := c.call(ctx, "/buffer_functions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Reparse(ctx context.Context, file string) (*service.ReparseResponse, error) {
	var resp service.ReparseResponse
	if err := c.call(ctx, "/reparse", ReparseRequest{File: file}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Environment(ctx context.Context) (*service.EnvironmentResponse, error) {
	var resp service.EnvironmentResponse
	if err := c.call(ctx, "/environment", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown requests the server to shut down
func (c *Client) Shutdown(ctx context.Context, force bool) error {
	var resp ShutdownResponse
	if err := c.call(ctx, "/shutdown", ShutdownRequest{Force: force}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("shutdown failed: %s", resp.Message)
	}
	return nil
}

// WaitForReady waits until every parser of the server is idle or timeout
func (c *Client) WaitForReady(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for index to be ready")
		case <-ticker.C:
			status, err := c.Status(ctx)
			if err != nil {
				continue
			}
			if status.Ready {
				return nil
			}
		}
	}
}

// CloseIdleConnections releases pooled connections to the socket.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
