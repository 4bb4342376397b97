package policy

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeStore is an in-memory policy store for gate tests.
type fakeStore struct {
	policy    *ActionPolicy
	approvals map[string]*ActionApproval
	created   int
}

func newFakeStore(pol *ActionPolicy) *fakeStore {
	return &fakeStore{policy: pol, approvals: make(map[string]*ActionApproval)}
}

func (f *fakeStore) ActivePolicy(ctx context.Context, userID string) (*ActionPolicy, error) {
	return f.policy, nil
}

func (f *fakeStore) CreateApproval(ctx context.Context, a *ActionApproval) error {
	cp := *a
	f.approvals[a.ID] = &cp
	f.created++
	return nil
}

func (f *fakeStore) GetApproval(ctx context.Context, id string) (*ActionApproval, error) {
	a, ok := f.approvals[id]
	if !ok {
		return nil, errors.New("approval not found")
	}
	return a, nil
}

func (f *fakeStore) ResolveApproval(ctx context.Context, id, status string) error {
	a, ok := f.approvals[id]
	if !ok {
		return errors.New("approval not found")
	}
	a.Status = status
	return nil
}

type fakeNotifier struct {
	notified []*ActionApproval
}

func (f *fakeNotifier) NotifyPendingApproval(ctx context.Context, a *ActionApproval) error {
	f.notified = append(f.notified, a)
	return nil
}

func maxAmount(v float64) *float64 { return &v }

func TestValidateActionNoPolicy(t *testing.T) {
	gate := NewGate(newFakeStore(nil), nil, zap.NewNop())

	err := gate.ValidateAction(context.Background(), "u1", "transfer", 100, nil)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want Violation", err)
	}
	if v.Code != CodeNoPolicyConfigured {
		t.Errorf("got code %q, want %q", v.Code, CodeNoPolicyConfigured)
	}
	if v.SoftBlock() {
		t.Error("no-policy should be a hard denial")
	}
}

func TestValidateActionNotAllowed(t *testing.T) {
	st := newFakeStore(&ActionPolicy{
		UserID:             "u1",
		AllowedActionTypes: []string{"rebalance"},
		Status:             PolicyActive,
	})
	gate := NewGate(st, nil, zap.NewNop())

	err := gate.ValidateAction(context.Background(), "u1", "transfer", 100, nil)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want Violation", err)
	}
	if v.Code != CodeActionNotAllowed {
		t.Errorf("got code %q, want %q", v.Code, CodeActionNotAllowed)
	}
	if st.created != 0 {
		t.Errorf("hard denial created %d approvals, want 0", st.created)
	}
}

func TestValidateActionAmountLimit(t *testing.T) {
	st := newFakeStore(&ActionPolicy{
		UserID:             "u1",
		AllowedActionTypes: []string{"transfer"},
		MaxAmount:          maxAmount(500),
		Status:             PolicyActive,
	})
	gate := NewGate(st, nil, zap.NewNop())

	err := gate.ValidateAction(context.Background(), "u1", "transfer", 500.01, nil)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want Violation", err)
	}
	if v.Code != CodeAmountExceedsLimit {
		t.Errorf("got code %q, want %q", v.Code, CodeAmountExceedsLimit)
	}

	// At the limit is allowed.
	if err := gate.ValidateAction(context.Background(), "u1", "transfer", 500, nil); err != nil {
		t.Errorf("amount at limit: got %v, want nil", err)
	}
}

func TestValidateActionRequiresConfirmation(t *testing.T) {
	st := newFakeStore(&ActionPolicy{
		UserID:              "u1",
		AllowedActionTypes:  []string{"transfer"},
		RequireConfirmation: true,
		Status:              PolicyActive,
	})
	notifier := &fakeNotifier{}
	gate := NewGate(st, notifier, zap.NewNop())

	err := gate.ValidateAction(context.Background(), "u1", "transfer", 100, nil)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want Violation", err)
	}
	if v.Code != CodeApprovalRequired {
		t.Errorf("got code %q, want %q", v.Code, CodeApprovalRequired)
	}
	if !v.SoftBlock() {
		t.Error("approval-required should be a soft block")
	}
	if v.ApprovalID == "" {
		t.Fatal("expected an approval id on the violation")
	}
	if st.created != 1 {
		t.Errorf("created %d approvals, want 1", st.created)
	}
	a := st.approvals[v.ApprovalID]
	if a == nil || a.Status != ApprovalPending {
		t.Fatalf("approval %s not pending: %+v", v.ApprovalID, a)
	}
	if len(notifier.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.notified))
	}
}

func TestApproveAndRejectLifecycle(t *testing.T) {
	st := newFakeStore(&ActionPolicy{
		UserID:              "u1",
		AllowedActionTypes:  []string{"transfer"},
		RequireConfirmation: true,
		Status:              PolicyActive,
	})
	gate := NewGate(st, nil, zap.NewNop())

	err := gate.ValidateAction(context.Background(), "u1", "transfer", 100, nil)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("got %v, want Violation", err)
	}

	if err := gate.Approve(context.Background(), v.ApprovalID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := st.approvals[v.ApprovalID].Status; got != ApprovalApproved {
		t.Errorf("got status %q, want %q", got, ApprovalApproved)
	}

	// A second resolution of the same approval is rejected.
	if err := gate.Reject(context.Background(), v.ApprovalID); !errors.Is(err, ErrNotPending) {
		t.Errorf("got %v, want ErrNotPending", err)
	}
}

func TestValidateActionAllowed(t *testing.T) {
	st := newFakeStore(&ActionPolicy{
		UserID:             "u1",
		AllowedActionTypes: []string{"transfer", "rebalance"},
		MaxAmount:          maxAmount(10000),
		Status:             PolicyActive,
	})
	gate := NewGate(st, nil, zap.NewNop())

	if err := gate.ValidateAction(context.Background(), "u1", "rebalance", 2500, nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if st.created != 0 {
		t.Errorf("allowed action created %d approvals, want 0", st.created)
	}
}
