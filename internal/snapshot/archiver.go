// Package snapshot archives raw fetched pages to a blob store.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

const defaultContentType = "text/html; charset=utf-8"

// Archiver writes page bodies under <prefix>/<source_id>/<sha256>.html.
type Archiver struct {
	blobs       crawler.BlobStore
	prefix      string
	contentType string
}

// Result describes a stored snapshot.
type Result struct {
	URI    string
	Digest string
	Path   string
}

// New builds an Archiver over blobs.
func New(blobs crawler.BlobStore, prefix string) *Archiver {
	return &Archiver{
		blobs:       blobs,
		prefix:      strings.Trim(prefix, "/"),
		contentType: defaultContentType,
	}
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Path builds the object path for a body digest.
func (a *Archiver) Path(sourceID, digest string) string {
	if a.prefix == "" {
		return fmt.Sprintf("%s/%s.html", sourceID, digest)
	}
	return fmt.Sprintf("%s/%s/%s.html", a.prefix, sourceID, digest)
}

// Archive stores body for sourceID.
func (a *Archiver) Archive(ctx context.Context, sourceID string, body []byte) (Result, error) {
	if a == nil || a.blobs == nil {
		return Result{}, errors.New("snapshot store is not configured")
	}
	if sourceID == "" {
		return Result{}, errors.New("source id is required")
	}
	digest := Digest(body)
	path := a.Path(sourceID, digest)
	uri, err := a.blobs.PutObject(ctx, path, a.contentType, body)
	if err != nil {
		return Result{}, fmt.Errorf("put snapshot: %w", err)
	}
	return Result{URI: uri, Digest: digest, Path: path}, nil
}
