package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ShareLink is the index record of a share token. The token file under the
// share directory remains the source of truth; the index adds bookkeeping.
type ShareLink struct {
	Token      string `json:"token"`
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
	Path       string `json:"-"`
	Downloads  int    `json:"downloads"`
	CreatedAt  int64  `json:"createdAt"`
}

// ShareIndex records share links. It is optional; without it shares still
// resolve but cannot be listed or cleaned up when their target goes away.
type ShareIndex interface {
	CreateShare(s *ShareLink) error
	ListSharesForResource(resourceID string) ([]ShareLink, error)
	ListSharesForPath(path string) ([]ShareLink, error)
	IncrementDownloads(token string) error
	DeleteShare(token string) error
}

// SharedFile is the content behind a share token.
type SharedFile struct {
	Name string
	Data []byte
}

// ResolveShare follows token -> stored absolute path -> file content.
func (e *Engine) ResolveShare(token string) (*SharedFile, error) {
	if e.shareDir == "" {
		return nil, ErrSharingDisabled
	}
	target, err := e.shareTarget(token)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrInvalidResourceName
		}
		return nil, fmt.Errorf("read shared file: %w", err)
	}

	if e.index != nil {
		if err := e.index.IncrementDownloads(token); err != nil {
			log.Printf("[storage] record share download %s: %v", token, err)
		}
	}
	return &SharedFile{Name: filepath.Base(target), Data: data}, nil
}

// ListShares returns the share links pointing into a resource.
func (e *Engine) ListShares(id string) ([]ShareLink, error) {
	if !e.layout.IsValid(id) {
		return nil, ErrInvalidResourceID
	}
	if e.shareDir == "" || e.index == nil {
		return nil, ErrSharingDisabled
	}
	links, err := e.index.ListSharesForResource(id)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	if links == nil {
		links = []ShareLink{}
	}
	return links, nil
}

// RevokeShare deletes a share token that points into the given resource.
func (e *Engine) RevokeShare(id, token string) error {
	if !e.layout.IsValid(id) {
		return ErrInvalidResourceID
	}
	if e.shareDir == "" {
		return ErrSharingDisabled
	}
	target, err := e.shareTarget(token)
	if err != nil {
		return err
	}
	if !within(e.layout.DataPath(id), target) {
		return ErrInvalidResourceID
	}
	if err := os.Remove(filepath.Join(e.shareDir, token)); err != nil {
		return fmt.Errorf("remove share: %w", err)
	}
	if e.index != nil {
		if err := e.index.DeleteShare(token); err != nil {
			log.Printf("[storage] unindex share %s: %v", token, err)
		}
	}
	return nil
}

// createShare persists a new token for path and indexes it.
func (e *Engine) createShare(id, path string) (string, error) {
	token, err := NewID()
	if err != nil {
		return "", fmt.Errorf("create share: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.shareDir, token), []byte(path), 0644); err != nil {
		return "", fmt.Errorf("write share: %w", err)
	}
	if e.index != nil {
		link := &ShareLink{
			Token:      token,
			ResourceID: id,
			Name:       filepath.Base(path),
			Path:       path,
			CreatedAt:  time.Now().Unix(),
		}
		if err := e.index.CreateShare(link); err != nil {
			log.Printf("[storage] index share %s: %v", token, err)
		}
	}
	return token, nil
}

// shareTarget reads the absolute path stored in a token file.
func (e *Engine) shareTarget(token string) (string, error) {
	if !WellFormed(token) {
		return "", ErrInvalidResourceID
	}
	raw, err := os.ReadFile(filepath.Join(e.shareDir, token))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrInvalidResourceID
		}
		return "", fmt.Errorf("read share: %w", err)
	}
	target := filepath.Clean(strings.TrimRight(string(raw), "\r\n"))
	// Only files owned by the engine may be served.
	if !within(filepath.Join(e.layout.Root, e.layout.DataDir), target) {
		return "", ErrInvalidResourceID
	}
	return target, nil
}

// dropSharesFor revokes every indexed share of a removed path.
func (e *Engine) dropSharesFor(path string) {
	if e.index == nil || e.shareDir == "" {
		return
	}
	links, err := e.index.ListSharesForPath(path)
	if err != nil {
		log.Printf("[storage] lookup shares for removed file: %v", err)
		return
	}
	for _, l := range links {
		if err := os.Remove(filepath.Join(e.shareDir, l.Token)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[storage] remove share %s: %v", l.Token, err)
			continue
		}
		if err := e.index.DeleteShare(l.Token); err != nil {
			log.Printf("[storage] unindex share %s: %v", l.Token, err)
		}
	}
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	return strings.HasPrefix(filepath.Clean(path), root+string(os.PathSeparator))
}
