package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Showrunner.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Showrunner.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunSession submits a new pipeline run.
func (c *Client) RunSession(req RunSessionRequest) (*RunSessionResponse, error) {
	var resp RunSessionResponse
	if err := c.client.Call("Showrunner.RunSession", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession returns the snapshot for one session.
func (c *Client) GetSession(sessionID string) (*GetSessionResponse, error) {
	var resp GetSessionResponse
	req := GetSessionRequest{SessionID: sessionID}
	if err := c.client.Call("Showrunner.GetSession", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions returns session snapshots optionally filtered by statuses.
func (c *Client) ListSessions(statuses []string) (*ListSessionsResponse, error) {
	var resp ListSessionsResponse
	req := ListSessionsRequest{Statuses: statuses}
	if err := c.client.Call("Showrunner.ListSessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopSession asks a session to stop at the next stage boundary.
func (c *Client) StopSession(sessionID string) (*StopSessionResponse, error) {
	var resp StopSessionResponse
	req := StopSessionRequest{SessionID: sessionID}
	if err := c.client.Call("Showrunner.StopSession", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopDaemon asks the daemon process to shut down.
func (c *Client) StopDaemon() (*StopDaemonResponse, error) {
	var resp StopDaemonResponse
	if err := c.client.Call("Showrunner.StopDaemon", StopDaemonRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Showrunner.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
