package webhooks

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/registry"
)

func TestDispatchSignsPayload(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	type delivery struct {
		body []byte
		sig  string
	}
	got := make(chan delivery, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{body: body, sig: r.Header.Get("x-signature")}
	}))
	defer ts.Close()

	hooks := New(Config{
		Endpoints:  []string{ts.URL},
		SigningKey: key,
		RetryLimit: 1,
		Backoff:    10 * time.Millisecond,
	})

	hooks.PackagePublished(&registry.Receipt{ID: "mock-namespace/mock-package/1.0.0"})

	select {
	case d := <-got:
		var packet Packet
		require.NoError(t, json.Unmarshal(d.body, &packet))
		assert.Equal(t, EventPublish, packet.Event)

		raw, err := base64.StdEncoding.DecodeString(d.sig)
		require.NoError(t, err)
		sig, err := core.SignatureFromBytes(raw)
		require.NoError(t, err)
		addr, err := core.RecoverAddress(sig, d.body)
		require.NoError(t, err)
		assert.Equal(t, core.SignerAddress(key), addr)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestDispatchRetries(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		done <- struct{}{}
	}))
	defer ts.Close()

	hooks := New(Config{
		Endpoints:  []string{ts.URL},
		SigningKey: key,
		RetryLimit: 3,
		Backoff:    time.Millisecond,
	})
	hooks.PackageFetched("mock-namespace/mock-package/1.0.0")

	select {
	case <-done:
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not retried")
	}
}
