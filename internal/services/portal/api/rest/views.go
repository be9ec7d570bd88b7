package rest

import (
	"time"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// recordView is the JSON shape of one budget record. Column names follow the
// BI dataset convention so the grid client binds them without remapping.
type recordView struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	BusinessUnit string `json:"business_unit"`

	SalesRegion    string `json:"Sales_Region"`
	CustomerGroup  string `json:"Customer_Group"`
	BizType        string `json:"BizType"`
	VendorCategory string `json:"Vendor_Category"`
	ProductNature  string `json:"ProductNature"`

	Y2019A *float64 `json:"Y2019A"`
	Y2020A *float64 `json:"Y2020A"`
	Y2021A *float64 `json:"Y2021A"`
	Y2022A *float64 `json:"Y2022A"`
	Y2023A *float64 `json:"Y2023A"`
	Y2024B *float64 `json:"Y2024B"`

	Y2025B      *float64 `json:"Y2025B"`
	Y2026P      *float64 `json:"Y2026P"`
	Y2027P      *float64 `json:"Y2027P"`
	Y2028P      *float64 `json:"Y2028P"`
	Y2029P      *float64 `json:"Y2029P"`
	SalesRemark *string  `json:"Sales_Remark"`

	Version     int64   `json:"version"`
	IsSubmitted bool    `json:"is_submitted"`
	SubmittedAt *string `json:"submitted_at"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func viewOf(record domain.BudgetRecord) recordView {
	view := recordView{
		ID:             record.ID,
		UserID:         record.UserID,
		BusinessUnit:   record.BusinessUnit,
		SalesRegion:    record.SalesRegion,
		CustomerGroup:  record.CustomerGroup,
		BizType:        record.BizType,
		VendorCategory: record.VendorCategory,
		ProductNature:  record.ProductNature,
		Y2019A:         record.Y2019A,
		Y2020A:         record.Y2020A,
		Y2021A:         record.Y2021A,
		Y2022A:         record.Y2022A,
		Y2023A:         record.Y2023A,
		Y2024B:         record.Y2024B,
		Y2025B:         record.Y2025B,
		Y2026P:         record.Y2026P,
		Y2027P:         record.Y2027P,
		Y2028P:         record.Y2028P,
		Y2029P:         record.Y2029P,
		SalesRemark:    record.SalesRemark,
		Version:        record.Version,
		IsSubmitted:    record.IsSubmitted,
		CreatedAt:      record.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      record.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if record.SubmittedAt != nil {
		formatted := record.SubmittedAt.UTC().Format(time.RFC3339)
		view.SubmittedAt = &formatted
	}
	return view
}

func viewsOf(records []domain.BudgetRecord) []recordView {
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, viewOf(record))
	}
	return views
}
