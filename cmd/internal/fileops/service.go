// Package fileops runs blob store, load, delete and batch-store operations in
// the background and tracks them by id until a client polls the outcome.
package fileops

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"petlink/cmd/internal/blob"
	"petlink/cmd/internal/operations"
	"petlink/cmd/internal/workpool"

	"golang.org/x/sync/errgroup"
)

const defaultBatchParallelism = 4

// BlobStore is the storage the operations wrap.
type BlobStore interface {
	Store(ctx context.Context, data []byte, category, originalName string) (string, error)
	Load(ctx context.Context, category, filename string) ([]byte, error)
	Delete(ctx context.Context, category, filename string) (bool, error)
}

type publicURLer interface {
	PublicURL(category, filename string) string
}

// Upload is one file handed in by a client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Stored describes a blob written by a store operation.
type Stored struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Category     string `json:"category"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	URL          string `json:"url,omitempty"`
}

// ItemResult is the outcome of one file in a batch.
type ItemResult struct {
	Stored *Stored `json:"stored,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult is the value of a finished batch-store operation. A batch
// completes even when some of its items failed.
type BatchResult struct {
	Items     map[string]ItemResult `json:"items"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

// Service owns one registry per operation kind.
type Service struct {
	blobs BlobStore
	log   *slog.Logger

	batchParallelism int

	stores  *operations.Registry[Stored]
	loads   *operations.Registry[[]byte]
	deletes *operations.Registry[bool]
	batches *operations.Registry[BatchResult]
}

// Option configures a Service.
type Option func(*Service)

// WithBatchParallelism caps how many files of one batch are written at once.
func WithBatchParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchParallelism = n
		}
	}
}

// NewService runs single-file operations on filePool and batches on batchPool.
func NewService(blobs BlobStore, filePool, batchPool *workpool.Pool, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		blobs:            blobs,
		log:              log,
		batchParallelism: defaultBatchParallelism,
		stores:           operations.NewRegistry[Stored](operations.KindStore, filePool, log),
		loads:            operations.NewRegistry[[]byte](operations.KindLoad, filePool, log),
		deletes:          operations.NewRegistry[bool](operations.KindDelete, filePool, log),
		batches:          operations.NewRegistry[BatchResult](operations.KindBatchStore, batchPool, log),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartStore writes one upload in the background.
func (s *Service) StartStore(category string, up Upload) (string, error) {
	return s.stores.Start(category+"/"+up.Name, func(ctx context.Context) (Stored, error) {
		return s.store(ctx, category, up)
	})
}

// PollStore reports a store operation.
func (s *Service) PollStore(id string) operations.Poll[Stored] { return s.stores.Poll(id) }

// StartLoad reads category/filename in the background.
func (s *Service) StartLoad(category, filename string) (string, error) {
	return s.loads.Start(category+"/"+filename, func(ctx context.Context) ([]byte, error) {
		return s.blobs.Load(ctx, category, filename)
	})
}

// PollLoad reports a load operation.
func (s *Service) PollLoad(id string) operations.Poll[[]byte] { return s.loads.Poll(id) }

// StartDelete removes category/filename in the background. The value reports
// whether the blob existed.
func (s *Service) StartDelete(category, filename string) (string, error) {
	return s.deletes.Start(category+"/"+filename, func(ctx context.Context) (bool, error) {
		return s.blobs.Delete(ctx, category, filename)
	})
}

// PollDelete reports a delete operation.
func (s *Service) PollDelete(id string) operations.Poll[bool] { return s.deletes.Poll(id) }

// StartBatchStore writes every upload, isolating failures per item.
func (s *Service) StartBatchStore(category string, uploads []Upload) (string, error) {
	subject := fmt.Sprintf("%s: %d files", category, len(uploads))
	return s.batches.Start(subject, func(ctx context.Context) (BatchResult, error) {
		return s.storeBatch(ctx, category, uploads)
	})
}

// PollBatch reports a batch-store operation.
func (s *Service) PollBatch(id string) operations.Poll[BatchResult] { return s.batches.Poll(id) }

// Cancel cancels the operation id of the given kind.
func (s *Service) Cancel(kind operations.Kind, id string) bool {
	switch kind {
	case operations.KindStore:
		return s.stores.Cancel(id)
	case operations.KindLoad:
		return s.loads.Cancel(id)
	case operations.KindDelete:
		return s.deletes.Cancel(id)
	case operations.KindBatchStore:
		return s.batches.Cancel(id)
	default:
		return false
	}
}

// Sweep drops finished operations nobody polled within retention.
func (s *Service) Sweep(retention time.Duration) int {
	return s.stores.Sweep(retention) +
		s.loads.Sweep(retention) +
		s.deletes.Sweep(retention) +
		s.batches.Sweep(retention)
}

func (s *Service) store(ctx context.Context, category string, up Upload) (Stored, error) {
	name, err := s.blobs.Store(ctx, up.Data, category, up.Name)
	if err != nil {
		return Stored{}, err
	}

	out := Stored{
		Filename:     name,
		OriginalName: up.Name,
		Category:     category,
		ContentType:  up.ContentType,
		Size:         len(up.Data),
	}
	if out.ContentType == "" {
		out.ContentType = blob.ContentType(name)
	}
	if u, ok := s.blobs.(publicURLer); ok {
		out.URL = u.PublicURL(category, name)
	}
	return out, nil
}

func (s *Service) storeBatch(ctx context.Context, category string, uploads []Upload) (BatchResult, error) {
	results := make([]ItemResult, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.batchParallelism)

	for i, up := range uploads {
		g.Go(func() error {
			st, err := s.store(ctx, category, up)
			if err != nil {
				s.log.Warn("fileops.batch.item.fail", "category", category, "name", up.Name, "err", err)
				results[i] = ItemResult{Error: err.Error()}
				return nil
			}
			results[i] = ItemResult{Stored: &st}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	out := BatchResult{Items: make(map[string]ItemResult, len(uploads))}
	for i, res := range results {
		out.Items[uniqueKey(out.Items, uploads[i].Name, i)] = res
		if res.Error != "" {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}

	s.log.Info("fileops.batch.done", "category", category, "succeeded", out.Succeeded, "failed", out.Failed)
	return out, nil
}

func uniqueKey(items map[string]ItemResult, name string, idx int) string {
	if name == "" {
		name = "item-" + strconv.Itoa(idx+1)
	}
	if _, taken := items[name]; !taken {
		return name
	}
	for n := 2; ; n++ {
		k := name + "#" + strconv.Itoa(n)
		if _, taken := items[k]; !taken {
			return k
		}
	}
}
