// Package api implements the client-side API for code wishing to interact
// with the verl conversion service.
//
// The verl command-line client itself uses this package to talk to a
// running server when invoked with --remote.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/BearBiscuit05/verl/envconfig"
	"github.com/BearBiscuit05/verl/version"
)

// Client encapsulates client state for interacting with the verl service.
// Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	if err := json.Unmarshal(body, &apiError); err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from the
// environment variable VERL_HOST, which points to the network host and
// port on which the verl service is listening.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		bts, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(bts)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("verl/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}

	return nil
}

// Convert maps a model config to a transformer config on the server.
func (c *Client) Convert(ctx context.Context, req *ConvertRequest) (*ConvertResponse, error) {
	var resp ConvertResponse
	if err := c.do(ctx, http.MethodPost, "/api/convert", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Architectures lists the architectures the server recognizes.
func (c *Client) Architectures(ctx context.Context) (*ListArchitecturesResponse, error) {
	var resp ListArchitecturesResponse
	if err := c.do(ctx, http.MethodGet, "/api/architectures", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
