// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ctubio/ckpool-sub002/errors"
)

// newTestServer serves canned JSON-RPC responses keyed by method.
func newTestServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "user" || pass != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var req struct {
				ID     uint64        `json:"id"`
				Method string        `json:"method"`
				Params []interface{} `json:"params"`
			}
			err := json.NewDecoder(r.Body).Decode(&req)
			if err != nil {
				t.Errorf("unable to decode request: %v", err)
				return
			}
			result, ok := results[req.Method]
			if !ok {
				fmt.Fprintf(w, `{"result":null,"error":`+
					`{"code":-32601,"message":"method not found"}}`)
				return
			}
			fmt.Fprintf(w, `{"result":%s,"error":null}`, result)
		}))
}

func newTestClient(url string) *Client {
	return NewClient(&ClientConfig{URL: url, User: "user", Pass: "pass"})
}

func TestGetBlockHashAtHeight(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"getblockhash": `"00000000abcdef"`,
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	hash, err := c.GetBlockHashAtHeight(context.Background(), 100)
	if err != nil {
		t.Fatalf("unable to fetch block hash: %v", err)
	}
	if hash != "00000000abcdef" {
		t.Fatalf("unexpected block hash %q", hash)
	}
}

func TestGetBlockConfirmations(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"getblockheader": `{"confirmations":42,"height":100}`,
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	confs, err := c.GetBlockConfirmations(context.Background(), "somehash")
	if err != nil {
		t.Fatalf("unable to fetch confirmations: %v", err)
	}
	if confs != 42 {
		t.Fatalf("expected 42 confirmations, got %d", confs)
	}
}

func TestValidateAddress(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"validateaddress": `{"isvalid":true}`,
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	ok, err := c.ValidateAddress(context.Background(), "someaddress")
	if err != nil {
		t.Fatalf("unable to validate address: %v", err)
	}
	if !ok {
		t.Fatal("expected the address to validate")
	}
}

func TestRPCError(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetBlockHashAtHeight(context.Background(), 100)
	if !errors.Is(err, errors.Disconnected) {
		t.Fatalf("expected a disconnected error, got %v", err)
	}
}
