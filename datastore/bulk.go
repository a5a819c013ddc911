package datastore

import (
	"context"
	"fmt"
)

// ItemError is the failure of one item of a bulk operation.
type ItemError struct {
	Index int
	Key   string
	Err   error
}

func (e ItemError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("item %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Key, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// BulkError reports the items of a bulk operation that failed. The other
// items were applied.
type BulkError struct {
	Op    string
	Total int
	Items []ItemError
}

func (e *BulkError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("%s: %d items, none failed", e.Op, e.Total)
	}
	return fmt.Sprintf("%s: %d of %d items failed, first: %v", e.Op, len(e.Items), e.Total, e.Items[0])
}

func (e *BulkError) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i, item := range e.Items {
		errs[i] = item
	}
	return errs
}

// BulkInsert saves every instance into model's collection. Items are
// independent: each one is attempted, and the failures come back together
// as a *BulkError.
func (d *Datastore) BulkInsert(ctx context.Context, model Model, instances []Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var failed []ItemError
	for i, inst := range instances {
		key, _, err := d.save(ctx, model, inst)
		if err != nil {
			failed = append(failed, ItemError{Index: i, Key: key, Err: err})
		}
	}
	return d.bulkResult("bulk insert", len(instances), failed)
}

// BulkDelete removes every key from model's collection with the same
// per-item policy as BulkInsert.
func (d *Datastore) BulkDelete(ctx context.Context, model Model, keys []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var failed []ItemError
	for i, key := range keys {
		k, err := d.delete(model, key)
		if err != nil {
			failed = append(failed, ItemError{Index: i, Key: k, Err: err})
		}
	}
	return d.bulkResult("bulk delete", len(keys), failed)
}

func (d *Datastore) bulkResult(op string, total int, failed []ItemError) error {
	if len(failed) == 0 {
		return nil
	}
	for _, item := range failed {
		d.log.Warn(op+" item failed", "index", item.Index, "key", item.Key, "err", item.Err)
	}
	return &BulkError{Op: op, Total: total, Items: failed}
}
