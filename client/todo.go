package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/panyam/docauth"
	"github.com/panyam/docauth/todo"
)

// DefaultTodoPath is where the server mounts the to-do item API
const DefaultTodoPath = "/todos"

// TodoClient talks to the to-do item API. Every call goes through the
// AccessProxy, so a rejected credential is renewed and the call retried.
type TodoClient struct {
	ServerURL string
	Path      string

	// Owner is the partition to work in. When empty, the subject of the
	// current credential is used.
	Owner string

	proxy      *AccessProxy
	httpClient *http.Client
}

// NewTodoClient creates a client for the API at serverURL
func NewTodoClient(serverURL string, proxy *AccessProxy) *TodoClient {
	return &TodoClient{
		ServerURL:  strings.TrimRight(serverURL, "/"),
		Path:       DefaultTodoPath,
		proxy:      proxy,
		httpClient: &http.Client{},
	}
}

func (c *TodoClient) owner(token string) (string, error) {
	if c.Owner != "" {
		return c.Owner, nil
	}
	return SubjectOf(token)
}

// do sends one request with the given credential and decodes a JSON
// response into out. It returns false when the server answers 404.
func (c *TodoClient) do(ctx context.Context, token, method, path string, in, out any) (bool, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ServerURL+c.Path+path, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &docauth.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("invalid response from server: %w", err)
		}
	}
	return true, nil
}

func itemsPath(owner string) string {
	return "/" + url.PathEscape(owner) + "/items"
}

func itemPath(owner, id string) string {
	return itemsPath(owner) + "/" + url.PathEscape(id)
}

func (c *TodoClient) CreateItem(ctx context.Context, item *todo.Item) (*todo.Item, error) {
	return Call(ctx, c.proxy, func(ctx context.Context, token string) (*todo.Item, error) {
		owner, err := c.owner(token)
		if err != nil {
			return nil, err
		}
		var out todo.Item
		if _, err := c.do(ctx, token, http.MethodPost, itemsPath(owner), item, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// GetItem returns nil if the item does not exist
func (c *TodoClient) GetItem(ctx context.Context, id string) (*todo.Item, error) {
	return Call(ctx, c.proxy, func(ctx context.Context, token string) (*todo.Item, error) {
		owner, err := c.owner(token)
		if err != nil {
			return nil, err
		}
		var out todo.Item
		found, err := c.do(ctx, token, http.MethodGet, itemPath(owner, id), nil, &out)
		if err != nil || !found {
			return nil, err
		}
		return &out, nil
	})
}

// UpdateItem replaces the item with item.ID, returning nil if it does not exist
func (c *TodoClient) UpdateItem(ctx context.Context, item *todo.Item) (*todo.Item, error) {
	return Call(ctx, c.proxy, func(ctx context.Context, token string) (*todo.Item, error) {
		owner, err := c.owner(token)
		if err != nil {
			return nil, err
		}
		var out todo.Item
		found, err := c.do(ctx, token, http.MethodPut, itemPath(owner, item.ID), item, &out)
		if err != nil || !found {
			return nil, err
		}
		return &out, nil
	})
}

func (c *TodoClient) DeleteItem(ctx context.Context, id string) error {
	return c.proxy.Do(ctx, func(ctx context.Context, token string) error {
		owner, err := c.owner(token)
		if err != nil {
			return err
		}
		_, err = c.do(ctx, token, http.MethodDelete, itemPath(owner, id), nil, nil)
		return err
	})
}

func (c *TodoClient) QueryItems(ctx context.Context, filter todo.Filter) ([]*todo.Item, error) {
	return Call(ctx, c.proxy, func(ctx context.Context, token string) ([]*todo.Item, error) {
		owner, err := c.owner(token)
		if err != nil {
			return nil, err
		}
		var out []*todo.Item
		path := itemsPath(owner) + "?filter=" + url.QueryEscape(filter.String())
		if _, err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}
