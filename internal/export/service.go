package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"poppy/api/internal/store"
)

// DataStore defines the data access the exporter needs
type DataStore interface {
	GetIdea(ctx context.Context, id string) (store.Idea, error)
	ListHistory(ctx context.Context, ideaID string) ([]store.HistoryEntry, error)
	ListContributors(ctx context.Context, ideaID string) ([]store.Contributor, error)
}

// Service renders ideas into portable documents, optionally copying each
// export into an object-storage archive.
type Service struct {
	store   DataStore
	archive *Archive
}

// NewService creates an export service. archive may be nil.
func NewService(store DataStore, archive *Archive) *Service {
	return &Service{store: store, archive: archive}
}

// Export generates an export of an idea in the requested format.
func (s *Service) Export(ctx context.Context, ideaID, format string) (Result, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return Result{}, fmt.Errorf("get idea: %w", err)
	}
	history, err := s.store.ListHistory(ctx, ideaID)
	if err != nil {
		return Result{}, fmt.Errorf("list history: %w", err)
	}
	contributors, err := s.store.ListContributors(ctx, ideaID)
	if err != nil {
		return Result{}, fmt.Errorf("list contributors: %w", err)
	}

	data := TemplateData{
		Idea:         idea,
		History:      history,
		Contributors: contributors,
	}

	var result Result
	switch Format(format) {
	case FormatMarkdown, "":
		rendered, err := RenderIdeaMarkdown(data)
		if err != nil {
			return Result{}, fmt.Errorf("render markdown: %w", err)
		}
		result = Result{
			Data:     rendered,
			Filename: safeFilename(idea.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}
	case FormatJSON:
		encoded, err := json.MarshalIndent(map[string]any{
			"idea":         idea,
			"history":      history,
			"contributors": contributors,
		}, "", "  ")
		if err != nil {
			return Result{}, fmt.Errorf("encode json: %w", err)
		}
		result = Result{
			Data:     encoded,
			Filename: safeFilename(idea.Title) + ".json",
			MimeType: "application/json",
		}
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if s.archive != nil {
		go func(r Result) {
			if err := s.archive.Store(context.Background(), idea.ID, r); err != nil {
				log.Printf("export: archive %s: %v", idea.ID, err)
			}
		}(result)
	}
	return result, nil
}

func safeFilename(title string) string {
	cleaned := make([]rune, 0, len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			cleaned = append(cleaned, r)
		case r == ' ' || r == '-' || r == '_':
			cleaned = append(cleaned, '-')
		}
	}
	if len(cleaned) == 0 {
		return "idea"
	}
	return string(cleaned)
}

// Archive copies exports into an S3-compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to the object store and ensures the bucket exists.
func NewArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// Store writes one export under <ideaID>/<timestamp>-<filename>.
func (a *Archive) Store(ctx context.Context, ideaID string, result Result) error {
	objectName := fmt.Sprintf("%s/%s-%s", ideaID, time.Now().UTC().Format("20060102T150405"), result.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
