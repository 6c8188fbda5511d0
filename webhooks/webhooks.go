// Package webhooks delivers signed event notifications to configured
// endpoints after successful fetch and publish operations.
package webhooks

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/registry"
)

var log = logging.Logger("registry/webhooks")

// Event names carried in the webhook packet.
const (
	EventPublish = "publish"
	EventFetch   = "fetch"
)

// Packet is the JSON document posted to each endpoint.
type Packet struct {
	Event string `json:"event"`
	Body  any    `json:"body"`
}

// Config for webhook delivery.
type Config struct {
	Endpoints  []string
	SigningKey *secp256k1.PrivateKey
	RetryLimit uint64
	Backoff    time.Duration
}

// Hooks implements registry.Hooks. Delivery is asynchronous: each
// endpoint gets its own goroutine with exponential backoff, and
// failures are logged, never surfaced to the client.
type Hooks struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Hooks {
	return &Hooks{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ registry.Hooks = (*Hooks)(nil)

func (h *Hooks) PackagePublished(receipt *registry.Receipt) {
	h.dispatch(EventPublish, receipt)
}

func (h *Hooks) PackageFetched(id string) {
	h.dispatch(EventFetch, map[string]string{"id": id})
}

func (h *Hooks) dispatch(event string, body any) {
	if len(h.cfg.Endpoints) == 0 {
		return
	}
	payload, err := json.Marshal(Packet{Event: event, Body: body})
	if err != nil {
		log.Errorw("encoding webhook packet", "event", event, "error", err)
		return
	}
	sig := core.Sign(h.cfg.SigningKey, payload)

	for _, endpoint := range h.cfg.Endpoints {
		log.Debugw("exec webhook",
			"url", endpoint,
			"event", event,
			"retry_limit", h.cfg.RetryLimit)
		go h.deliver(endpoint, payload, sig)
	}
}

func (h *Hooks) deliver(endpoint string, payload []byte, sig core.Signature) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.cfg.Backoff
	policy := backoff.WithMaxRetries(bo, h.cfg.RetryLimit)

	err := backoff.Retry(func() error {
		return h.post(endpoint, payload, sig)
	}, policy)
	if err != nil {
		log.Errorw("webhook failed", "url", endpoint, "error", err)
	}
}

func (h *Hooks) post(endpoint string, payload []byte, sig core.Signature) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-signature", base64.StdEncoding.EncodeToString(sig.Bytes()))

	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return xerrors.Errorf("webhook endpoint returned %d", res.StatusCode)
	}
	return nil
}
