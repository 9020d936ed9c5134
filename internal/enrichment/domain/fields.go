package domain

import (
	"sort"
	"strings"
)

// FieldName names a contact or company attribute.
type FieldName string

const (
	FieldFullName      FieldName = "full_name"
	FieldEmail         FieldName = "email"
	FieldPhone         FieldName = "phone"
	FieldJobTitle      FieldName = "job_title"
	FieldLinkedInURL   FieldName = "linkedin_url"
	FieldCompanyName   FieldName = "company_name"
	FieldCompanyDomain FieldName = "company_domain"
	FieldCompanySize   FieldName = "company_size"
	FieldIndustry      FieldName = "industry"
	FieldLocation      FieldName = "location"
)

var (
	// RequiredFields gate completion.
	RequiredFields = []FieldName{FieldFullName, FieldEmail, FieldPhone}
	// NiceToHaveFields are reported as missing but never gate completion.
	NiceToHaveFields = []FieldName{FieldJobTitle, FieldLinkedInURL, FieldCompanyName}
	// SupplementaryFields are merged when offered and otherwise ignored.
	SupplementaryFields = []FieldName{FieldCompanyDomain, FieldCompanySize, FieldIndustry, FieldLocation}
)

// TrackedFields are the fields listed in missing-field reports.
func TrackedFields() []FieldName {
	return append(append([]FieldName{}, RequiredFields...), NiceToHaveFields...)
}

// AllFields returns every known field.
func AllFields() []FieldName {
	return append(TrackedFields(), SupplementaryFields...)
}

// IsKnown reports whether name is a recognised field.
func (n FieldName) IsKnown() bool {
	for _, f := range AllFields() {
		if f == n {
			return true
		}
	}
	return false
}

// Fields holds known attribute values. A missing or blank value is absent.
type Fields map[FieldName]string

// Has reports whether name holds a non-blank value.
func (f Fields) Has(name FieldName) bool {
	return strings.TrimSpace(f[name]) != ""
}

// Get returns the value and whether it is present.
func (f Fields) Get(name FieldName) (string, bool) {
	if !f.Has(name) {
		return "", false
	}
	return f[name], true
}

// Clone returns a copy holding only present values.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Missing lists the fields of tracked that are absent, in tracked order.
func (f Fields) Missing(tracked []FieldName) []FieldName {
	var missing []FieldName
	for _, name := range tracked {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// MergeMissing copies values from other only where f has none. Values
// already present are never overwritten. It returns the contributed
// fields in name order; unknown field names are dropped.
func (f Fields) MergeMissing(other Fields) []FieldName {
	names := make([]FieldName, 0, len(other))
	for name := range other {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var added []FieldName
	for _, name := range names {
		if !name.IsKnown() || f.Has(name) || !other.Has(name) {
			continue
		}
		f[name] = strings.TrimSpace(other[name])
		added = append(added, name)
	}
	return added
}

// IsComplete reports whether every required field is present.
func IsComplete(f Fields) bool {
	return len(f.Missing(RequiredFields)) == 0
}
