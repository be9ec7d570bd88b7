package domain

import "encoding/json"

// Optional wraps a patch field that distinguishes absent from null.
//
// An absent JSON key leaves Set false and the field untouched; an explicit
// null sets Set with a nil Value, clearing the stored value.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON records presence and decodes non-null values.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

// MarshalJSON renders the wrapped value, or null when cleared.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// FieldPatch is a partial set of editable-field values for one record.
//
// JSON keys follow the BI dataset column names so the grid client can send
// its cell identifiers through unchanged.
type FieldPatch struct {
	RecordID    int64             `json:"id"`
	Y2025B      Optional[float64] `json:"Y2025B"`
	Y2026P      Optional[float64] `json:"Y2026P"`
	Y2027P      Optional[float64] `json:"Y2027P"`
	Y2028P      Optional[float64] `json:"Y2028P"`
	Y2029P      Optional[float64] `json:"Y2029P"`
	SalesRemark Optional[string]  `json:"Sales_Remark"`
}

// HasEdits reports whether the patch carries at least one editable field.
func (p FieldPatch) HasEdits() bool {
	return p.Y2025B.Set || p.Y2026P.Set || p.Y2027P.Set || p.Y2028P.Set ||
		p.Y2029P.Set || p.SalesRemark.Set
}

// Merge overlays other's set fields onto the patch. Fields other leaves
// absent keep their current state, so merging a sequence of patches equals
// applying them in order.
func (p *FieldPatch) Merge(other FieldPatch) {
	if other.Y2025B.Set {
		p.Y2025B = other.Y2025B
	}
	if other.Y2026P.Set {
		p.Y2026P = other.Y2026P
	}
	if other.Y2027P.Set {
		p.Y2027P = other.Y2027P
	}
	if other.Y2028P.Set {
		p.Y2028P = other.Y2028P
	}
	if other.Y2029P.Set {
		p.Y2029P = other.Y2029P
	}
	if other.SalesRemark.Set {
		p.SalesRemark = other.SalesRemark
	}
}

// Apply overwrites the record's editable fields present in the patch.
// It does not touch version or timestamps; the store owns those.
func (p FieldPatch) Apply(record *BudgetRecord) {
	if record == nil {
		return
	}
	if p.Y2025B.Set {
		record.Y2025B = p.Y2025B.Value
	}
	if p.Y2026P.Set {
		record.Y2026P = p.Y2026P.Value
	}
	if p.Y2027P.Set {
		record.Y2027P = p.Y2027P.Value
	}
	if p.Y2028P.Set {
		record.Y2028P = p.Y2028P.Value
	}
	if p.Y2029P.Set {
		record.Y2029P = p.Y2029P.Value
	}
	if p.SalesRemark.Set {
		record.SalesRemark = p.SalesRemark.Value
	}
}
