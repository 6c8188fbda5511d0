// Package api exposes the registry operations over HTTP. The wire
// contract is the shape of the typed requests and responses in the
// registry package; routing here is plain net/http.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/layer"
	"github.com/LavaMoat/ipfs-registry/registry"
	"github.com/LavaMoat/ipfs-registry/storage"
)

var log = logging.Logger("registry/api")

// signatureHeader carries the base64 encoded 65 byte recoverable
// signature on every mutating request.
const signatureHeader = "x-signature"

// yankReasonLimit bounds the yank reason body.
const yankReasonLimit = 4 << 10

// Server routes HTTP requests to the registry service.
type Server struct {
	svc     *registry.Service
	origins []string
	mux     *http.ServeMux
}

func NewServer(svc *registry.Service, origins []string) *Server {
	s := &Server{
		svc:     svc,
		origins: origins,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/publisher", s.signup)
	s.mux.HandleFunc("POST /api/namespace/{namespace}", s.registerNamespace)
	s.mux.HandleFunc("POST /api/namespace/{namespace}/user/{address}", s.addUser)
	s.mux.HandleFunc("DELETE /api/namespace/{namespace}/user/{address}", s.removeUser)

	s.mux.HandleFunc("POST /api/package/{namespace}", s.publish)
	s.mux.HandleFunc("POST /api/package/yank", s.yank)
	s.mux.HandleFunc("GET /api/package", s.fetch)
	s.mux.HandleFunc("GET /api/package/version", s.version)
	s.mux.HandleFunc("GET /api/package/{namespace}", s.listPackages)
	s.mux.HandleFunc("GET /api/package/{namespace}/{package}", s.listVersions)
	s.mux.HandleFunc("GET /api/package/{namespace}/{package}/latest", s.latest)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s
}

// Handler wraps the mux with the CORS policy.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("access-control-allow-origin", origin)
			w.Header().Set("access-control-allow-methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("access-control-allow-headers", "content-type, x-signature")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// readSignature decodes the x-signature header.
func readSignature(r *http.Request) (core.Signature, error) {
	var sig core.Signature
	value := r.Header.Get(signatureHeader)
	if value == "" {
		return sig, core.ErrUnauthorized
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return sig, core.ErrUnauthorized
	}
	return core.SignatureFromBytes(raw)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorw("encoding response", "error", err)
	}
}

// writeError maps the domain error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var writeErr *layer.WriteError
	var readErr *layer.ReadError
	switch {
	case errors.Is(err, core.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrInvalidSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrIntegrityFailure):
		status = http.StatusBadGateway
	case errors.As(err, &writeErr):
		status = http.StatusBadGateway
	case errors.As(err, &readErr):
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		log.Errorw("request failed", "status", status, "error", err)
	} else {
		log.Debugw("request rejected", "status", status, "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}

func pagerFrom(r *http.Request) storage.Pager {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return storage.Pager{
		Limit:      limit,
		Offset:     offset,
		Descending: q.Get("sort") == "desc",
	}
}
