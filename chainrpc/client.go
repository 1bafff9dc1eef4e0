// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainrpc provides a JSON-RPC client for the block oracle queries
// of the ledger, backed by a full node's HTTP RPC interface.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// ClientConfig contains all of the configuration values which should be
// provided when creating a new instance of Client.
type ClientConfig struct {
	// URL is the HTTP RPC endpoint of the node.
	URL string
	// User is the RPC basic auth username.
	User string
	// Pass is the RPC basic auth password.
	Pass string
	// Timeout bounds each RPC round trip. Defaults to ten seconds when
	// unset.
	Timeout time.Duration
}

// Client is a JSON-RPC 1.0 client over HTTP with basic auth.
type Client struct {
	cfg    *ClientConfig
	client *http.Client
	nextID uint64
}

// NewClient creates a block oracle RPC client.
func NewClient(cCfg *ClientConfig) *Client {
	timeout := cCfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cCfg,
		client: &http.Client{Timeout: timeout},
	}
}

// rpcRequest is a JSON-RPC request body.
type rpcRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// rpcError is a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is a JSON-RPC response envelope, the result left raw for the
// caller to decode.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one RPC round trip, decoding the result into the provided
// value.
func (c *Client) call(ctx context.Context, method string,
	params []interface{}, result interface{}) error {
	const funcName = "call"

	body, err := json.Marshal(&rpcRequest{
		ID:     atomic.AddUint64(&c.nextID, 1),
		Method: method,
		Params: params,
	})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to marshal %s request: %v",
			funcName, method, err)
		return errors.MsgError(errors.Parse, desc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL,
		bytes.NewReader(body))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create %s request: %v",
			funcName, method, err)
		return errors.MsgError(errors.Parse, desc)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.User, c.cfg.Pass)

	log.Tracef("calling %s with %d params", method, len(params))
	resp, err := c.client.Do(req)
	if err != nil {
		desc := fmt.Sprintf("%s: %s request failed: %v", funcName, method, err)
		return errors.MsgError(errors.Disconnected, desc)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to read %s response: %v", funcName,
			method, err)
		return errors.MsgError(errors.Disconnected, desc)
	}

	var envelope rpcResponse
	err = json.Unmarshal(respBody, &envelope)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to unmarshal %s response: %v",
			funcName, method, err)
		return errors.MsgError(errors.Parse, desc)
	}
	if envelope.Error != nil {
		desc := fmt.Sprintf("%s: %s returned error %d: %s", funcName, method,
			envelope.Error.Code, envelope.Error.Message)
		return errors.MsgError(errors.Disconnected, desc)
	}
	err = json.Unmarshal(envelope.Result, result)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to unmarshal %s result: %v",
			funcName, method, err)
		return errors.MsgError(errors.Parse, desc)
	}
	return nil
}

// GetBlockHashAtHeight returns the network's block hash at the provided
// height.
func (c *Client) GetBlockHashAtHeight(ctx context.Context, height uint32) (string, error) {
	var hash string
	err := c.call(ctx, "getblockhash", []interface{}{height}, &hash)
	if err != nil {
		return "", err
	}
	return hash, nil
}

// blockHeader is the subset of the getblockheader result the oracle needs.
type blockHeader struct {
	Confirmations int64 `json:"confirmations"`
}

// GetBlockConfirmations returns the confirmation count of the block with the
// provided hash, negative when the block is off the main chain.
func (c *Client) GetBlockConfirmations(ctx context.Context, blockHash string) (int64, error) {
	var header blockHeader
	err := c.call(ctx, "getblockheader", []interface{}{blockHash}, &header)
	if err != nil {
		return 0, err
	}
	return header.Confirmations, nil
}

// addressInfo is the subset of the validateaddress result the oracle needs.
type addressInfo struct {
	IsValid bool `json:"isvalid"`
}

// ValidateAddress checks an address for well-formedness against the node.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	var info addressInfo
	err := c.call(ctx, "validateaddress", []interface{}{address}, &info)
	if err != nil {
		return false, err
	}
	return info.IsValid, nil
}
