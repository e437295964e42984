package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nyxchain/observability"
)

type fakeNode struct {
	shutdowns int
	status    Status
}

func (f *fakeNode) RequestShutdown() { f.shutdowns++ }
func (f *fakeNode) Status() Status   { return f.status }

func newTestServer(t *testing.T, node NodeControl, token string) *httptest.Server {
	t.Helper()
	srv := NewServer(node, token, nil)
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, url, token, body string) rpcResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestStopRequestsShutdown(t *testing.T) {
	node := &fakeNode{}
	ts := newTestServer(t, node, "")

	resp := call(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"stop"}`)
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	if resp.Result != "nyxd stopping" {
		t.Fatalf("result = %v", resp.Result)
	}
	if node.shutdowns != 1 {
		t.Fatalf("shutdowns = %d", node.shutdowns)
	}
}

func TestGetStatus(t *testing.T) {
	node := &fakeNode{status: Status{State: "running", Height: 12, Peers: 3, MasterNode: true}}
	ts := newTestServer(t, node, "")

	resp := call(t, ts.URL, "", `{"jsonrpc":"2.0","id":2,"method":"getstatus"}`)
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if st != node.status {
		t.Fatalf("status = %+v, want %+v", st, node.status)
	}
}

func TestAuthRequired(t *testing.T) {
	node := &fakeNode{}
	ts := newTestServer(t, node, "sekrit")

	resp := call(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"stop"}`)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want unauthorized", resp.Error)
	}
	if node.shutdowns != 0 {
		t.Fatal("unauthenticated request reached the node")
	}

	resp = call(t, ts.URL, "sekrit", `{"jsonrpc":"2.0","id":1,"method":"stop"}`)
	if resp.Error != nil {
		t.Fatalf("authorized call failed: %+v", resp.Error)
	}
	if node.shutdowns != 1 {
		t.Fatal("authorized stop not delivered")
	}
}

func TestHelpListsMethods(t *testing.T) {
	ts := newTestServer(t, &fakeNode{}, "")
	resp := call(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"help"}`)
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	methods, ok := resp.Result.([]interface{})
	if !ok || len(methods) != 3 {
		t.Fatalf("result = %v", resp.Result)
	}
}

func TestUnknownMethod(t *testing.T) {
	ts := newTestServer(t, &fakeNode{}, "")
	resp := call(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"mineblock"}`)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t, &fakeNode{}, "")

	resp := call(t, ts.URL, "", `{not json`)
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("error = %+v, want parse error", resp.Error)
	}

	resp = call(t, ts.URL, "", `{"jsonrpc":"1.0","id":1,"method":"stop"}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("error = %+v, want invalid request", resp.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	observability.Metrics() // register the node collectors
	// Metrics are readable without the RPC auth token.
	ts := newTestServer(t, &fakeNode{}, "sekrit")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "nyx_") {
		t.Fatal("no node metrics exported")
	}
}

func TestGetOnlyPostAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeNode{}, "")
	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
