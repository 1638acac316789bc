package types

import (
	"fmt"

	"github.com/samber/lo"
)

const (
	FILTER_DEFAULT_LIMIT = 50

	OrderDesc = "desc"
	OrderAsc  = "asc"
)

// BaseFilter defines common filtering capabilities
type BaseFilter interface {
	GetLimit() int
	GetOffset() int
	GetStatus() string
	GetSort() string
	GetOrder() string
	Validate() error
	IsUnlimited() bool
}

// QueryFilter represents a generic query filter with optional fields
type QueryFilter struct {
	Limit  *int    `json:"limit,omitempty" form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset *int    `json:"offset,omitempty" form:"offset" validate:"omitempty,min=0"`
	Status *Status `json:"status,omitempty" form:"status"`
	Sort   *string `json:"sort,omitempty" form:"sort"`
	Order  *string `json:"order,omitempty" form:"order" validate:"omitempty,oneof=asc desc"`
}

// NewDefaultQueryFilter creates a query filter with default values
func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{
		Limit:  lo.ToPtr(FILTER_DEFAULT_LIMIT),
		Offset: lo.ToPtr(0),
		Status: lo.ToPtr(StatusPublished),
		Sort:   lo.ToPtr("created_at"),
		Order:  lo.ToPtr(OrderDesc),
	}
}

// NewNoLimitQueryFilter creates a query filter with no pagination limits
func NewNoLimitQueryFilter() *QueryFilter {
	return &QueryFilter{
		Status: lo.ToPtr(StatusPublished),
		Sort:   lo.ToPtr("created_at"),
		Order:  lo.ToPtr(OrderDesc),
	}
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit == nil {
		return FILTER_DEFAULT_LIMIT
	}
	return *f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil || f.Offset == nil {
		return 0
	}
	return *f.Offset
}

func (f *QueryFilter) GetStatus() string {
	if f == nil || f.Status == nil {
		return string(StatusPublished)
	}
	return string(*f.Status)
}

func (f *QueryFilter) GetSort() string {
	if f == nil || f.Sort == nil {
		return "created_at"
	}
	return *f.Sort
}

func (f *QueryFilter) GetOrder() string {
	if f == nil || f.Order == nil {
		return OrderDesc
	}
	return *f.Order
}

func (f *QueryFilter) IsUnlimited() bool {
	return f == nil || f.Limit == nil
}

// Validate validates the query filter
func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}

	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > 1000) {
		return fmt.Errorf("limit must be between 1 and 1000")
	}
	if f.Offset != nil && *f.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	if f.Order != nil && *f.Order != OrderAsc && *f.Order != OrderDesc {
		return fmt.Errorf("order must be asc or desc")
	}

	return nil
}
