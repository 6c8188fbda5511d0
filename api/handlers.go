package api

import (
	"io"
	"net/http"

	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/registry"
)

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := s.svc.Signup(r.Context(), sig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, record)
}

func (s *Server) registerNamespace(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := s.svc.RegisterNamespace(r.Context(), r.PathValue("namespace"), sig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, record)
}

func (s *Server) addUser(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	err = s.svc.AddUser(r.Context(),
		r.PathValue("namespace"),
		r.PathValue("address"),
		q.Get("admin") == "true",
		q.Get("package"),
		sig)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) removeUser(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.svc.RemoveUser(r.Context(), r.PathValue("namespace"), r.PathValue("address"), sig)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// One past the limit so the service can distinguish "at the
	// limit" from "over it".
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.svc.BodyLimit()+1))
	if err != nil {
		writeError(w, xerrors.Errorf("reading body: %w", core.ErrPayloadTooLarge))
		return
	}

	receipt, err := s.svc.Publish(r.Context(), registry.PublishRequest{
		Namespace:   r.PathValue("namespace"),
		Body:        body,
		Signature:   sig,
		ContentType: r.Header.Get("content-type"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, receipt)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, xerrors.Errorf("id query parameter required: %w", core.ErrBadRequest))
		return
	}
	data, err := s.svc.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("content-type", s.svc.Mime())
	if _, err := w.Write(data); err != nil {
		log.Errorw("writing archive response", "id", id, "error", err)
	}
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, xerrors.Errorf("id query parameter required: %w", core.ErrBadRequest))
		return
	}
	record, err := s.svc.GetVersion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, record)
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	listing, err := s.svc.ListPackages(r.Context(),
		r.PathValue("namespace"),
		pagerFrom(r),
		r.URL.Query().Get("versions") == "latest")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, listing)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	listing, err := s.svc.ListVersions(r.Context(),
		r.PathValue("namespace"),
		r.PathValue("package"),
		r.URL.Query().Get("range"),
		pagerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, listing)
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.LatestVersion(r.Context(),
		r.PathValue("namespace"),
		r.PathValue("package"),
		r.URL.Query().Get("prerelease") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, record)
}

func (s *Server) yank(w http.ResponseWriter, r *http.Request) {
	sig, err := readSignature(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, xerrors.Errorf("id query parameter required: %w", core.ErrBadRequest))
		return
	}
	reason, err := io.ReadAll(http.MaxBytesReader(w, r.Body, yankReasonLimit))
	if err != nil {
		writeError(w, xerrors.Errorf("reading reason: %w", core.ErrPayloadTooLarge))
		return
	}
	if err := s.svc.Yank(r.Context(), id, reason, sig); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
