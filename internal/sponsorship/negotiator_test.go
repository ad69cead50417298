package sponsorship

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOp = Operation{
	Sender:   "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	To:       "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	CallData: "0xdeadbeef",
	ChainID:  8453,
}

func TestNegotiateSponsored(t *testing.T) {
	var gotMethod string
	var gotPolicy string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMethod = req.Method
		if len(req.Params) == 2 {
			gotPolicy, _ = req.Params[1].(string)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{
			"paymasterAndData":"0xpm",
			"verificationGasLimit":"0x186a0",
			"callGasLimit":"0x30d40",
			"preVerificationGas":"0xaae0"
		}}`)
	}))
	defer srv.Close()

	n := NewNegotiator(srv.URL, "policy-123")
	result := n.Negotiate(context.Background(), testOp)

	assert.True(t, result.Sponsored)
	assert.Equal(t, "0xpm", result.PaymasterAndData)
	assert.Equal(t, "0x186a0", result.VerificationGasLimit)
	assert.Equal(t, "0x30d40", result.CallGasLimit)
	assert.Equal(t, "0xaae0", result.PreVerificationGas)
	assert.Equal(t, "pm_sponsorUserOperation", gotMethod)
	assert.Equal(t, "policy-123", gotPolicy)
}

func TestNegotiateDegradesToUnsponsored(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}},
		{"rpc error", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"policy exhausted"}}`)
		}},
		{"declined", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"paymasterAndData":""}}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			n := NewNegotiator(srv.URL, "")
			assert.Equal(t, Result{}, n.Negotiate(context.Background(), testOp))
		})
	}
}

func TestNegotiateNoEndpoint(t *testing.T) {
	n := NewNegotiator("", "")
	assert.Equal(t, Result{}, n.Negotiate(context.Background(), testOp))
}

func TestNegotiateUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n := NewNegotiator(srv.URL, "")
	assert.Equal(t, Result{}, n.Negotiate(context.Background(), testOp))
}
