// Package memory manages the user's declared financial memory: a
// fixed, allow-listed set of typed fields the model may update on the
// user's behalf, with an audit event for every real change.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Field kinds.
const (
	KindInteger = "integer"
	KindDecimal = "decimal"
	KindEnum    = "enum"
	KindJSON    = "json"
)

// FieldSpec declares a writable field's type contract.
type FieldSpec struct {
	Kind string
	Enum []string
}

// fields is the explicit allow-list of model-writable memory fields.
// Anything else is rejected in-band.
var fields = map[string]FieldSpec{
	"age":                          {Kind: KindInteger},
	"dependents":                   {Kind: KindInteger},
	"emergency_fund_target_months": {Kind: KindInteger},
	"monthly_income":               {Kind: KindDecimal},
	"monthly_expenses":             {Kind: KindDecimal},
	"housing_cost":                 {Kind: KindDecimal},
	"monthly_savings":              {Kind: KindDecimal},
	"monthly_debt_payments":        {Kind: KindDecimal},
	"retirement_contribution":      {Kind: KindDecimal},
	"savings_rate_target":          {Kind: KindDecimal},
	"risk_tolerance":               {Kind: KindEnum, Enum: []string{"conservative", "moderate", "aggressive"}},
	"filing_status":                {Kind: KindEnum, Enum: []string{"single", "married_joint", "married_separate", "head_of_household"}},
	"financial_goals":              {Kind: KindJSON},
}

// FieldNames returns the allow-listed field names, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldError reports an unknown field or an uncoercible value. It is
// returned inside the tool result, never raised to the caller.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("memory field %q: %s", e.Field, e.Msg)
}

// AuditEvent records one real memory change.
type AuditEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence boundary for memory fields and their audit
// log.
type Store interface {
	// GetOrCreateMemory returns all stored fields for the user,
	// creating the memory record if absent.
	GetOrCreateMemory(ctx context.Context, userID string) (map[string]string, error)
	UpsertMemoryField(ctx context.Context, userID, field, value string) error
	InsertAuditEvent(ctx context.Context, ev *AuditEvent) error
}

// UpdateResult reports the outcome of an update.
type UpdateResult struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value"`
	Changed  bool   `json:"changed"`
}

// Service coerces and writes memory updates.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the user's full memory, creating it on first access.
func (s *Service) Get(ctx context.Context, userID string) (map[string]string, error) {
	return s.store.GetOrCreateMemory(ctx, userID)
}

// Update coerces value to the field's declared type and writes it.
// Writing the value the field already holds is a no-op: no row write,
// no audit event.
func (s *Service) Update(ctx context.Context, userID, field, value, reason string) (*UpdateResult, error) {
	spec, ok := fields[field]
	if !ok {
		return nil, &FieldError{Field: field, Msg: "not on the writable field list"}
	}
	canonical, err := coerce(spec, field, value)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetOrCreateMemory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	old := current[field]
	if old == canonical {
		return &UpdateResult{Field: field, OldValue: old, NewValue: canonical, Changed: false}, nil
	}

	if err := s.store.UpsertMemoryField(ctx, userID, field, canonical); err != nil {
		return nil, fmt.Errorf("write memory field: %w", err)
	}
	ev := &AuditEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Field:     field,
		OldValue:  old,
		NewValue:  canonical,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertAuditEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("write audit event: %w", err)
	}
	s.logger.Info("memory field updated",
		zap.String("user", userID),
		zap.String("field", field))
	return &UpdateResult{Field: field, OldValue: old, NewValue: canonical, Changed: true}, nil
}

// coerce validates raw against the field spec and returns the
// canonical stored form.
func coerce(spec FieldSpec, field, raw string) (string, error) {
	switch spec.Kind {
	case KindInteger:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", &FieldError{Field: field, Msg: fmt.Sprintf("expected an integer, got %q", raw)}
		}
		return strconv.Itoa(n), nil
	case KindDecimal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", &FieldError{Field: field, Msg: fmt.Sprintf("expected a number, got %q", raw)}
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case KindEnum:
		for _, allowed := range spec.Enum {
			if raw == allowed {
				return raw, nil
			}
		}
		return "", &FieldError{Field: field, Msg: fmt.Sprintf("value %q not in %v", raw, spec.Enum)}
	case KindJSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(raw)); err != nil {
			return "", &FieldError{Field: field, Msg: "expected valid JSON: " + err.Error()}
		}
		return buf.String(), nil
	default:
		return "", &FieldError{Field: field, Msg: "unsupported field kind " + spec.Kind}
	}
}
