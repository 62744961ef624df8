package files

import (
	"context"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

// MaxBulkOperations is the default cap on items per bulk request.
const MaxBulkOperations = 50

// Bulk applies ops in order under a single lock. Items are independent: a
// failed item is reported and the rest still run. Once the lock is held the
// batch ignores ctx cancellation. The error return covers only failures that
// stop the whole batch, such as a lock timeout or a missing project.
func (s *Service) Bulk(ctx context.Context, t Target, ops []models.BulkOperation) ([]models.BulkResult, error) {
	if len(ops) == 0 {
		return nil, models.InvalidArgument("no operations given")
	}
	if len(ops) > s.maxBulk {
		return nil, models.InvalidArgument("too many operations: %d (max %d)", len(ops), s.maxBulk)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	lockCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(lockCtx, t)
	if err != nil {
		observe(t, "bulk", err)
		return nil, err
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	b, err := s.backend(ctx, t)
	if err != nil {
		observe(t, "bulk", err)
		return nil, err
	}

	results := make([]models.BulkResult, 0, len(ops))
	for _, op := range ops {
		err := s.applyOne(ctx, b, op)
		observe(t, "bulk_"+string(op.Op), err)
		if err != nil && !models.IsExpected(err) {
			s.log.Error("bulk item failed", "target", t, "op", op.Op, "path", op.Path, "err", err)
		}
		results = append(results, models.BulkResult{
			Op:      op,
			Success: err == nil,
			Error:   models.DetailsOf(err),
		})
	}
	return results, nil
}

func (s *Service) applyOne(ctx context.Context, b storage.Backend, op models.BulkOperation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch op.Op {
	case models.BulkCreate:
		path, err := s.checkWrite(op.Path, op.Content)
		if err != nil {
			return err
		}
		_, err = b.Create(ctx, path, op.Content)
		return err
	case models.BulkUpdate:
		path, err := s.checkWrite(op.Path, op.Content)
		if err != nil {
			return err
		}
		_, err = b.Update(ctx, path, op.Content)
		return err
	case models.BulkDelete:
		path, err := paths.Normalize(op.Path)
		if err != nil {
			return err
		}
		return b.Delete(ctx, path)
	case models.BulkRename:
		if op.NewPath == "" {
			return models.InvalidArgument("rename requires new_path")
		}
		from, err := paths.Normalize(op.Path)
		if err != nil {
			return err
		}
		to, err := paths.Normalize(op.NewPath)
		if err != nil {
			return err
		}
		_, err = b.Rename(ctx, from, to)
		return err
	}
	return models.InvalidArgument("unknown bulk operation %q", op.Op)
}

// Summarize counts the outcomes of a bulk request.
func Summarize(results []models.BulkResult) models.BulkSummary {
	sum := models.BulkSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	return sum
}
