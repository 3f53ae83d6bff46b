package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"xsync-go/internal/auth"
	"xsync-go/internal/xsync"
)

// maxSmallPart bounds the non-file multipart fields and JSON bodies.
const maxSmallPart = 16 << 20

type tokenBody struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email, password := strings.TrimSpace(r.PostFormValue("email")), r.PostFormValue("password")
	if email == "" {
		s.writeError(w, r, fmt.Errorf("%w: email is required", xsync.ErrValidation))
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.CreateUser(r.Context(), email, hash); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issue(w, r, email, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email, password := strings.TrimSpace(r.PostFormValue("email")), r.PostFormValue("password")
	user, err := s.users.FindUser(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if user == nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid credentials", xsync.ErrUnauthenticated))
		return
	}
	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: invalid credentials", xsync.ErrUnauthenticated))
		return
	}
	s.issue(w, r, email, http.StatusOK)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, email string, status int) {
	token, err := s.tokens.Issue(email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, tokenBody{Token: token})
}

// handleUploadBatch reads the parts hash, hash-algorithm and metadata, then
// streams the file part into the depot. The file part must come last.
func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", xsync.ErrValidation, err))
		return
	}
	req := xsync.IngestRequest{}
	for req.Batch == nil {
		part, err := mr.NextPart()
		if err == io.EOF {
			s.writeError(w, r, fmt.Errorf("%w: upload has no file part", xsync.ErrValidation))
			return
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: reading multipart: %w", xsync.ErrTransferFailure, err))
			return
		}
		switch part.FormName() {
		case "hash":
			req.BatchDigest, err = readSmallPart(part)
		case "hash-algorithm":
			req.Algorithm, err = readSmallPart(part)
		case "metadata":
			var raw string
			if raw, err = readSmallPart(part); err == nil {
				req.Meta = &xsync.Metadata{}
				if jerr := json.Unmarshal([]byte(raw), req.Meta); jerr != nil {
					err = fmt.Errorf("%w: decoding metadata: %w", xsync.ErrValidation, jerr)
				}
			}
		case "file":
			req.Batch = part
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.BatchDigest == "" || req.Meta == nil {
		s.writeError(w, r, fmt.Errorf("%w: hash and metadata parts must precede file", xsync.ErrValidation))
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = s.depot.Algorithm().String()
	}

	rec, err := s.depot.IngestBatch(r.Context(), owner(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Metadata())
}

func readSmallPart(p *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p, maxSmallPart))
	if err != nil {
		return "", fmt.Errorf("%w: reading part %s: %w", xsync.ErrTransferFailure, p.FormName(), err)
	}
	return strings.TrimSpace(string(b)), nil
}

func decodeHashes(r *http.Request) ([]string, error) {
	var hashes []string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSmallPart)).Decode(&hashes); err != nil {
		return nil, fmt.Errorf("%w: decoding hash list: %w", xsync.ErrValidation, err)
	}
	return hashes, nil
}

// attachmentWriter defers the response headers until the first byte so an
// error found before streaming can still be answered with a status.
type attachmentWriter struct {
	w       http.ResponseWriter
	started bool
}

func (a *attachmentWriter) start() {
	if a.started {
		return
	}
	a.started = true
	h := a.w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", "attachment; filename=chunks")
	a.w.WriteHeader(http.StatusOK)
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	a.start()
	return a.w.Write(p)
}

func (s *Server) handleFetchBatch(w http.ResponseWriter, r *http.Request) {
	hashes, err := decodeHashes(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := &attachmentWriter{w: w}
	if err := s.depot.FetchBatch(r.Context(), hashes, out); err != nil {
		if !out.started {
			s.writeError(w, r, err)
			return
		}
		// The status is already sent; the client sees a short stream.
		s.logger.Error("batch fetch aborted", "request_id", requestID(r.Context()), "error", err)
		return
	}
	out.start()
}

func (s *Server) handleFetchChunk(w http.ResponseWriter, r *http.Request) {
	data, err := s.depot.FetchChunk(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleMissing(w http.ResponseWriter, r *http.Request) {
	hashes, err := decodeHashes(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	missing, err := s.depot.MissingChunks(r.Context(), hashes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, missing)
}

func pathParam(r *http.Request) (string, error) {
	p := r.URL.Query().Get("path")
	if p == "" {
		return "", fmt.Errorf("%w: path query parameter is required", xsync.ErrValidation)
	}
	return p, nil
}

func (s *Server) handleFetchMetadata(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.depot.FetchMetadata(r.Context(), owner(r.Context()), path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, fmt.Errorf("%w: no record for %s", xsync.ErrNotFound, path))
		return
	}
	writeJSON(w, http.StatusOK, rec.Metadata())
}

func (s *Server) handleUpsertMetadata(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var meta xsync.Metadata
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSmallPart)).Decode(&meta); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decoding metadata: %w", xsync.ErrValidation, err))
		return
	}
	if meta.FilePath == "" {
		meta.FilePath = path
	}
	if meta.FilePath != path {
		s.writeError(w, r, fmt.Errorf("%w: metadata filepath %q does not match %q", xsync.ErrValidation, meta.FilePath, path))
		return
	}
	rec, err := s.depot.UpsertMetadata(r.Context(), owner(r.Context()), &meta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Metadata())
}

func (s *Server) handleDeleteMetadata(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	existed, err := s.depot.DeleteMetadata(r.Context(), owner(r.Context()), path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !existed {
		s.writeError(w, r, fmt.Errorf("%w: no record for %s", xsync.ErrNotFound, path))
		return
	}
	writeJSON(w, http.StatusOK, path)
}
