package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFieldPatchUnmarshalDistinguishesAbsentAndNull(t *testing.T) {
	var patch FieldPatch
	if err := json.Unmarshal([]byte(`{"id": 7, "Y2025B": 100.5, "Y2026P": null}`), &patch); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}

	if patch.RecordID != 7 {
		t.Fatalf("record id = %d, want 7", patch.RecordID)
	}
	if !patch.Y2025B.Set || patch.Y2025B.Value == nil || *patch.Y2025B.Value != 100.5 {
		t.Fatalf("Y2025B = %+v, want set value 100.5", patch.Y2025B)
	}
	if !patch.Y2026P.Set || patch.Y2026P.Value != nil {
		t.Fatalf("Y2026P = %+v, want set null", patch.Y2026P)
	}
	if patch.Y2027P.Set {
		t.Fatal("absent Y2027P must stay unset")
	}
	if patch.SalesRemark.Set {
		t.Fatal("absent Sales_Remark must stay unset")
	}
}

func TestFieldPatchHasEdits(t *testing.T) {
	var empty FieldPatch
	if err := json.Unmarshal([]byte(`{"id": 3}`), &empty); err != nil {
		t.Fatalf("unmarshal empty patch: %v", err)
	}
	if empty.HasEdits() {
		t.Fatal("patch with only id must report no edits")
	}

	var remarkOnly FieldPatch
	if err := json.Unmarshal([]byte(`{"id": 3, "Sales_Remark": "revised"}`), &remarkOnly); err != nil {
		t.Fatalf("unmarshal remark patch: %v", err)
	}
	if !remarkOnly.HasEdits() {
		t.Fatal("remark-only patch must report edits")
	}
}

func TestFieldPatchApplyOverwritesOnlyPresentFields(t *testing.T) {
	existing := 42.0
	remark := "initial"
	record := BudgetRecord{
		Y2025B:      &existing,
		Y2026P:      &existing,
		SalesRemark: &remark,
	}

	var patch FieldPatch
	if err := json.Unmarshal([]byte(`{"id": 1, "Y2025B": 100, "Y2026P": null}`), &patch); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}
	patch.Apply(&record)

	if record.Y2025B == nil || *record.Y2025B != 100 {
		t.Fatalf("Y2025B = %v, want 100", record.Y2025B)
	}
	if record.Y2026P != nil {
		t.Fatalf("Y2026P = %v, want cleared", record.Y2026P)
	}
	if record.SalesRemark == nil || *record.SalesRemark != "initial" {
		t.Fatalf("Sales_Remark = %v, want untouched", record.SalesRemark)
	}
}

func TestFieldPatchMergeEqualsSequentialApplication(t *testing.T) {
	var first, second FieldPatch
	if err := json.Unmarshal([]byte(`{"id": 1, "Y2025B": 100, "Sales_Remark": "draft"}`), &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"id": 1, "Y2025B": 150, "Y2026P": null}`), &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}

	var sequential BudgetRecord
	first.Apply(&sequential)
	second.Apply(&sequential)

	mergedPatch := first
	mergedPatch.Merge(second)
	var merged BudgetRecord
	mergedPatch.Apply(&merged)

	if merged.Y2025B == nil || *merged.Y2025B != *sequential.Y2025B {
		t.Fatalf("Y2025B = %v, want later value %v", merged.Y2025B, sequential.Y2025B)
	}
	if merged.Y2026P != nil || sequential.Y2026P != nil {
		t.Fatal("Y2026P must stay cleared")
	}
	if merged.SalesRemark == nil || *merged.SalesRemark != "draft" {
		t.Fatalf("Sales_Remark = %v, want first patch value kept", merged.SalesRemark)
	}
}

func TestRecordStatus(t *testing.T) {
	record := BudgetRecord{}
	if record.Status() != StatusDraft || !record.CanEdit() {
		t.Fatal("fresh record must be an editable draft")
	}

	record.IsSubmitted = true
	if record.Status() != StatusSubmitted || record.CanEdit() {
		t.Fatal("submitted record must be frozen")
	}
}

func TestNewSubmissionBatchSnapshotsRecords(t *testing.T) {
	value := 250.0
	submissionTime := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	p := Partition{UserID: "u1", BusinessUnit: "BU-A"}

	batch := NewSubmissionBatch(p, submissionTime, []BudgetRecord{
		{ID: 1, UserID: "u1", BusinessUnit: "BU-A", Y2025B: &value, Version: 3},
		{ID: 2, UserID: "u1", BusinessUnit: "BU-A", Version: 1},
	})

	if batch.Partition != p {
		t.Fatalf("partition = %v, want %v", batch.Partition, p)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("rows len = %d, want 2", len(batch.Rows))
	}
	if batch.Rows[0].Y2025B == nil || *batch.Rows[0].Y2025B != 250.0 {
		t.Fatalf("rows[0].Y2025B = %v, want 250", batch.Rows[0].Y2025B)
	}
	if batch.Rows[0].Version != 3 {
		t.Fatalf("rows[0].Version = %d, want 3", batch.Rows[0].Version)
	}
	if batch.Rows[1].Y2025B != nil {
		t.Fatal("rows[1].Y2025B must stay null, never coerced to zero")
	}
	if batch.Rows[0].SubmittedAt != "2026-03-15T10:00:00Z" {
		t.Fatalf("SubmittedAt = %q", batch.Rows[0].SubmittedAt)
	}
}

func TestPartitionValidate(t *testing.T) {
	if err := (Partition{UserID: "u1", BusinessUnit: "BU-A"}).Validate(); err != nil {
		t.Fatalf("valid partition: %v", err)
	}
	if err := (Partition{BusinessUnit: "BU-A"}).Validate(); err == nil {
		t.Fatal("expected missing user id error")
	}
	if err := (Partition{UserID: "u1"}).Validate(); err == nil {
		t.Fatal("expected missing business unit error")
	}
}
