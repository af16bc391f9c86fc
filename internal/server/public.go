package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// sanitizeFilename strips directory traversal, quotes, and CR/LF from a filename
// to prevent Content-Disposition header injection attacks.
func sanitizeFilename(name string) string {
	// Normalize backslash separators (Windows-style paths) before calling filepath.Base.
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

// contentDisposition builds an attachment header carrying an ASCII filename
// for old clients and the exact UTF-8 name as an RFC 5987 filename*.
func contentDisposition(name string) string {
	name = sanitizeFilename(name)

	var ascii, ext strings.Builder
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			ascii.WriteByte('_')
		} else {
			ascii.WriteRune(r)
		}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAttrChar(c) {
			ext.WriteByte(c)
		} else {
			fmt.Fprintf(&ext, "%%%02X", c)
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii.String(), ext.String())
}

// isAttrChar reports whether c may appear unescaped in an RFC 5987 value.
func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// writeAttachment sends data as a binary download named name.
func writeAttachment(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleShareDownload handles GET /share/{token}: anonymous download of a
// shared file.
func (s *Server) handleShareDownload(w http.ResponseWriter, r *http.Request) {
	shared, err := s.engine.ResolveShare(r.PathValue("token"))
	if err != nil {
		writeEngineError(w, "resolve share", err)
		return
	}
	writeAttachment(w, shared.Name, shared.Data)
}

// handleListShares handles GET /storage/{resourceId}/shares.
func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	links, err := s.engine.ListShares(r.PathValue("resourceId"))
	if err != nil {
		writeEngineError(w, "list shares", err)
		return
	}
	writeData(w, links)
}

// handleRevokeShare handles POST /storage/{resourceId}/shares/{token}/delete.
func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RevokeShare(r.PathValue("resourceId"), r.PathValue("token")); err != nil {
		writeEngineError(w, "revoke share", err)
		return
	}
	writeData(w, true)
}
