package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/owss/owss/internal/resource"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to disk.
const multipartMemory = 32 << 20

// handleCreate handles GET /storage/create: create a new resource.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	peer := peerIP(r)
	if s.opts.Private && !s.creator.Allows(peer) {
		writeError(w, http.StatusUnauthorized, codePermissionDenied)
		return
	}
	if !s.allowCreate(getIP(r)) {
		writeError(w, http.StatusTooManyRequests, codeTooManyRequests)
		return
	}

	id, err := s.engine.Create(resource.CreateOptions{})
	if err != nil {
		writeEngineError(w, "create resource", err)
		return
	}
	log.Printf("[http] new id: %s (from %s)", id, peer)
	writeData(w, id)
}

// handleList handles GET /storage/{resourceId}/list: list resource entries.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest)
		return
	}
	pageSize, err := queryInt(q.Get("pageSize"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest)
		return
	}

	entries, err := s.engine.List(r.PathValue("resourceId"), resource.ListOptions{
		Path:      q.Get("path"),
		Search:    q.Get("search"),
		Page:      page,
		PageSize:  pageSize,
		OrderBy:   q.Get("orderBy"),
		OrderMode: q.Get("orderMode"),
	})
	if err != nil {
		writeEngineError(w, "list resource", err)
		return
	}
	writeData(w, entries)
}

// handleAdd handles POST /storage/{resourceId}/add: upload a file from the
// multipart field "data", or create a folder when type=dir.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, resource.ErrInvalidResourceData.Error())
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	id := r.PathValue("resourceId")
	name := r.FormValue("name")

	file, header, err := r.FormFile("data")
	if err == nil {
		defer file.Close()
		if name == "" {
			name = header.Filename
		}
		share, _ := strconv.ParseBool(r.FormValue("share"))
		s.addUpload(w, id, name, file, share)
		return
	}

	if r.FormValue("type") == "dir" {
		if err := s.engine.AddFolder(id, name); err != nil {
			writeEngineError(w, "add folder", err)
			return
		}
		writeData(w, true)
		return
	}

	writeError(w, http.StatusBadRequest, codeInvalidRequest)
}

// addUpload stages src under the tmp dir and hands it to the engine.
func (s *Server) addUpload(w http.ResponseWriter, id, name string, src io.Reader, share bool) {
	staged, err := s.stage(src)
	if err != nil {
		writeEngineError(w, "stage upload", err)
		return
	}

	result, err := s.engine.AddStaged(id, name, staged, share)
	if err != nil {
		os.Remove(staged)
		writeEngineError(w, "add file", err)
		return
	}
	if result.ShareID != "" {
		writeData(w, result)
		return
	}
	writeData(w, true)
}

// stage copies src into a uniquely named file in the tmp dir and returns its
// absolute path.
func (s *Server) stage(src io.Reader) (string, error) {
	staged := filepath.Join(s.tmpDir, uuid.New().String())
	f, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(staged)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return staged, nil
}

// handleGet handles GET /storage/{resourceId}/get/{path...}: download a file.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	data, err := s.engine.Get(r.PathValue("resourceId"), rel)
	if err != nil {
		writeEngineError(w, "get file", err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = path.Base(rel)
	}
	writeAttachment(w, name, data)
}

// handleDelete handles POST /storage/{resourceId}/delete/{path...}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.PathValue("resourceId"), r.PathValue("path")); err != nil {
		writeEngineError(w, "delete entry", err)
		return
	}
	writeData(w, true)
}

// handleRecount handles POST /storage/{resourceId}/recount: rebuild the file
// counter from disk.
func (s *Server) handleRecount(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ResetCount(r.PathValue("resourceId"))
	if err != nil {
		writeEngineError(w, "recount resource", err)
		return
	}
	writeData(w, n)
}

// queryInt parses an optional integer query parameter; empty means zero.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
