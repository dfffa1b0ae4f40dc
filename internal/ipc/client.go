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

// Enqueue adds a repository migration to the queue.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.client.Call("Convoy.Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove deletes a queue item by id.
func (c *Client) Remove(id int64) (*RemoveResponse, error) {
	var resp RemoveResponse
	if err := c.client.Call("Convoy.Remove", RemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a pending queue item.
func (c *Client) Cancel(id int64) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call("Convoy.Cancel", CancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelAll cancels every pending queue item.
func (c *Client) CancelAll() (*CancelAllResponse, error) {
	var resp CancelAllResponse
	if err := c.client.Call("Convoy.CancelAll", CancelAllRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reorder rewrites the FIFO order of pending items.
func (c *Client) Reorder(ids []int64) (*ReorderResponse, error) {
	var resp ReorderResponse
	if err := c.client.Call("Convoy.Reorder", ReorderRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Process starts a batch drain.
func (c *Client) Process(maxItems int) (*ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.client.Call("Convoy.Process", ProcessRequest{MaxItems: maxItems}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause stops new items from starting.
func (c *Client) Pause() (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Convoy.Pause", PauseRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume lifts a dispatch pause.
func (c *Client) Resume() (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.client.Call("Convoy.Resume", ResumeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetConcurrency adjusts the dispatcher permit ceiling.
func (c *Client) SetConcurrency(limit int) (*SetConcurrencyResponse, error) {
	var resp SetConcurrencyResponse
	if err := c.client.Call("Convoy.SetConcurrency", SetConcurrencyRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Convoy.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Convoy.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue items optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Convoy.QueueList", QueueListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single queue item.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	if err := c.client.Call("Convoy.QueueDescribe", QueueDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry retries failed items.
func (c *Client) QueueRetry(ids []int64) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	if err := c.client.Call("Convoy.QueueRetry", QueueRetryRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all non-processing items from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Convoy.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes only completed items from the queue.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	if err := c.client.Call("Convoy.QueueClearCompleted", QueueClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearFailed removes failed items from the queue.
func (c *Client) QueueClearFailed() (*QueueClearFailedResponse, error) {
	var resp QueueClearFailedResponse
	if err := c.client.Call("Convoy.QueueClearFailed", QueueClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Convoy.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Convoy.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
