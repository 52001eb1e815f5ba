package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/roadside-assist/internal/models"
)

var ErrNotFound = errors.New("request not found")

func activeKey(customerID string) string  { return "request:active:" + customerID }
func historyKey(customerID string) string { return "request:history:" + customerID }
func ownerKey(requestID string) string    { return "request:owner:" + requestID }

// HistoryStore keeps one active slot and a newest-first history per customer
// on top of a KV. It does no locking of its own; callers serialize writes per
// customer.
type HistoryStore struct {
	kv KV
}

func NewHistoryStore(kv KV) *HistoryStore {
	return &HistoryStore{kv: kv}
}

// Active returns the customer's active request, or nil when the slot is empty.
func (h *HistoryStore) Active(ctx context.Context, customerID string) (*models.ServiceRequest, error) {
	b, ok, err := h.kv.Load(ctx, activeKey(customerID))
	if err != nil || !ok {
		return nil, err
	}
	var r models.ServiceRequest
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode active request for %s: %w", customerID, err)
	}
	return &r, nil
}

func (h *HistoryStore) SaveActive(ctx context.Context, r *models.ServiceRequest) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return h.kv.Save(ctx, activeKey(r.CustomerID), b)
}

func (h *HistoryStore) ClearActive(ctx context.Context, customerID string) error {
	return h.kv.Delete(ctx, activeKey(customerID))
}

// History returns the customer's finished requests, newest first.
func (h *HistoryStore) History(ctx context.Context, customerID string) ([]*models.ServiceRequest, error) {
	b, ok, err := h.kv.Load(ctx, historyKey(customerID))
	if err != nil || !ok {
		return nil, err
	}
	var out []*models.ServiceRequest
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", customerID, err)
	}
	return out, nil
}

func (h *HistoryStore) saveHistory(ctx context.Context, customerID string, list []*models.ServiceRequest) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return h.kv.Save(ctx, historyKey(customerID), b)
}

// Archive moves r into history and empties the active slot. Archiving the
// same request again replaces its entry instead of adding a second one.
func (h *HistoryStore) Archive(ctx context.Context, r *models.ServiceRequest) error {
	list, err := h.History(ctx, r.CustomerID)
	if err != nil {
		return err
	}
	out := make([]*models.ServiceRequest, 0, len(list)+1)
	out = append(out, r)
	for _, e := range list {
		if e.ID != r.ID {
			out = append(out, e)
		}
	}
	if err := h.saveHistory(ctx, r.CustomerID, out); err != nil {
		return err
	}
	active, err := h.Active(ctx, r.CustomerID)
	if err != nil {
		return err
	}
	if active != nil && active.ID == r.ID {
		return h.ClearActive(ctx, r.CustomerID)
	}
	return nil
}

// UpdateHistory rewrites an archived request in place.
func (h *HistoryStore) UpdateHistory(ctx context.Context, r *models.ServiceRequest) error {
	list, err := h.History(ctx, r.CustomerID)
	if err != nil {
		return err
	}
	for i, e := range list {
		if e.ID == r.ID {
			list[i] = r
			return h.saveHistory(ctx, r.CustomerID, list)
		}
	}
	return ErrNotFound
}

func (h *HistoryStore) SetOwner(ctx context.Context, requestID, customerID string) error {
	return h.kv.Save(ctx, ownerKey(requestID), []byte(customerID))
}

// Owner returns the customer a request belongs to.
func (h *HistoryStore) Owner(ctx context.Context, requestID string) (string, bool, error) {
	b, ok, err := h.kv.Load(ctx, ownerKey(requestID))
	if err != nil || !ok {
		return "", false, err
	}
	return string(b), true, nil
}

// Find looks a request up by id in its owner's active slot, then history.
func (h *HistoryStore) Find(ctx context.Context, requestID string) (*models.ServiceRequest, error) {
	owner, ok, err := h.Owner(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if r, err := h.Active(ctx, owner); err != nil {
		return nil, err
	} else if r != nil && r.ID == requestID {
		return r, nil
	}
	list, err := h.History(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.ID == requestID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}
