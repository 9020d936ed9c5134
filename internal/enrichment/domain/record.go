package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the waterfall's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateExhausted State = "exhausted"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the run has finished.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateExhausted || s == StateFailed
}

// StepRecord logs one provider's turn in the waterfall.
type StepRecord struct {
	Provider      string        `json:"provider"`
	Success       bool          `json:"success"`
	Attempts      int           `json:"attempts"`
	FieldsAdded   []FieldName   `json:"fields_added"`
	FieldsMissing []FieldName   `json:"fields_missing"`
	Duration      time.Duration `json:"-"`
	Error         string        `json:"error,omitempty"`
}

type stepRecordJSON struct {
	Provider      string      `json:"provider"`
	Success       bool        `json:"success"`
	Attempts      int         `json:"attempts"`
	FieldsAdded   []FieldName `json:"fields_added"`
	FieldsMissing []FieldName `json:"fields_missing"`
	DurationMS    int64       `json:"duration_ms"`
	Error         string      `json:"error,omitempty"`
}

func (s StepRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepRecordJSON{
		Provider:      s.Provider,
		Success:       s.Success,
		Attempts:      s.Attempts,
		FieldsAdded:   nonNil(s.FieldsAdded),
		FieldsMissing: nonNil(s.FieldsMissing),
		DurationMS:    s.Duration.Milliseconds(),
		Error:         s.Error,
	})
}

func (s *StepRecord) UnmarshalJSON(data []byte) error {
	var raw stepRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = StepRecord{
		Provider:      raw.Provider,
		Success:       raw.Success,
		Attempts:      raw.Attempts,
		FieldsAdded:   raw.FieldsAdded,
		FieldsMissing: raw.FieldsMissing,
		Duration:      time.Duration(raw.DurationMS) * time.Millisecond,
		Error:         raw.Error,
	}
	return nil
}

func nonNil(names []FieldName) []FieldName {
	if names == nil {
		return []FieldName{}
	}
	return names
}

// Record accumulates one waterfall run. Once saved, a record's content is
// never changed; re-enriching a lead produces the next Version.
type Record struct {
	ID            uuid.UUID    `json:"id"`
	LeadID        uuid.UUID    `json:"lead_id"`
	UserID        uuid.UUID    `json:"user_id"`
	Version       int          `json:"version"`
	Domain        string       `json:"domain"`
	Fields        Fields       `json:"merged_fields"`
	Missing       []FieldName  `json:"missing"`
	ProvidersUsed []string     `json:"providers_used"`
	Steps         []StepRecord `json:"step_log"`
	State         State        `json:"terminal_state"`
	Billed        bool         `json:"billed"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewRecord seeds a pending record from the caller's known fields.
func NewRecord(leadID, userID uuid.UUID, domain string, known Fields) *Record {
	fields := known.Clone()
	return &Record{
		ID:            uuid.New(),
		LeadID:        leadID,
		UserID:        userID,
		Version:       1,
		Domain:        domain,
		Fields:        fields,
		Missing:       fields.Missing(TrackedFields()),
		ProvidersUsed: []string{},
		Steps:         []StepRecord{},
		State:         StatePending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Start moves a pending record to running.
func (r *Record) Start() {
	if r.State == StatePending {
		r.State = StateRunning
	}
}

// ApplyStep merges a provider result under the fill-only-if-missing rule
// and appends the step log entry. A failed attempt merges nothing.
func (r *Record) ApplyStep(provider string, result PartialResult, attempts int, elapsed time.Duration, err error) StepRecord {
	step := StepRecord{
		Provider: provider,
		Attempts: attempts,
		Duration: elapsed,
	}
	if err != nil {
		step.Error = err.Error()
	} else {
		step.Success = true
		step.FieldsAdded = r.Fields.MergeMissing(result.Fields)
	}
	step.FieldsMissing = r.Fields.Missing(TrackedFields())
	r.Missing = step.FieldsMissing

	if attempts > 0 {
		r.ProvidersUsed = append(r.ProvidersUsed, provider)
	}
	r.Steps = append(r.Steps, step)
	return step
}

// Finish moves the record to a terminal state.
func (r *Record) Finish(state State) {
	r.State = state
	r.Missing = r.Fields.Missing(TrackedFields())
}

// Consulted reports whether any provider was called.
func (r *Record) Consulted() bool {
	return len(r.ProvidersUsed) > 0
}

// FieldChange is a difference between two record versions.
type FieldChange struct {
	Field    FieldName
	OldValue *string
	NewValue *string
}

// Changes lists the fields whose value differs from previous, in field
// order. A nil previous treats every present field as new.
func (r *Record) Changes(previous *Record) []FieldChange {
	var before Fields
	if previous != nil {
		before = previous.Fields
	}
	var changes []FieldChange
	for _, name := range AllFields() {
		oldV, hadOld := before.Get(name)
		newV, hasNew := r.Fields.Get(name)
		if hadOld == hasNew && oldV == newV {
			continue
		}
		change := FieldChange{Field: name}
		if hadOld {
			change.OldValue = &oldV
		}
		if hasNew {
			change.NewValue = &newV
		}
		changes = append(changes, change)
	}
	return changes
}
