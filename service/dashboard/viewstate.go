package dashboard

// ViewState is one user's table state. It is a value; change it only with
// Reduce.
type ViewState struct {
	Query       Query  `json:"query"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	DataVersion uint64 `json:"data_version"`
}

// NewViewState returns the initial state for pageSize. An unsupported
// pageSize falls back to DefaultPageSize.
func NewViewState(pageSize int) ViewState {
	if !ValidPageSize(pageSize) {
		pageSize = DefaultPageSize
	}
	return ViewState{
		Query:    DefaultQuery(),
		Page:     1,
		PageSize: pageSize,
	}
}

// Action is a state transition accepted by Reduce.
type Action interface {
	apply(ViewState) ViewState
}

type (
	// SetSearch replaces the search text.
	SetSearch struct{ Text string }
	// SetMinAmount replaces the lower amount bound; "" unsets it.
	SetMinAmount struct{ Value string }
	// SetMaxAmount replaces the upper amount bound; "" unsets it.
	SetMaxAmount struct{ Value string }
	// SetSort replaces the sort key and direction.
	SetSort struct {
		By    SortField
		Order SortOrder
	}
	// SetPageSize switches to one of PageSizes. Other values are ignored.
	SetPageSize struct{ Size int }
	// SetPage moves to Page, clamped to [1, max(1, TotalPages)].
	SetPage struct {
		Page       int
		TotalPages int
	}
	// DataReplaced records that the store now holds a new record set.
	// Versions at or below the current one are ignored.
	DataReplaced struct{ Version uint64 }
	// ResetFilters restores the default query.
	ResetFilters struct{}
)

// Reduce returns the state that results from applying a to s. Every action
// that changes which records are in the filtered view or their order resets
// Page to 1.
func Reduce(s ViewState, a Action) ViewState {
	if a == nil {
		return s
	}
	return a.apply(s)
}

func (a SetSearch) apply(s ViewState) ViewState {
	if s.Query.Search == a.Text {
		return s
	}
	s.Query.Search = a.Text
	s.Page = 1
	return s
}

func (a SetMinAmount) apply(s ViewState) ViewState {
	if s.Query.MinAmount == a.Value {
		return s
	}
	s.Query.MinAmount = a.Value
	s.Page = 1
	return s
}

func (a SetMaxAmount) apply(s ViewState) ViewState {
	if s.Query.MaxAmount == a.Value {
		return s
	}
	s.Query.MaxAmount = a.Value
	s.Page = 1
	return s
}

func (a SetSort) apply(s ViewState) ViewState {
	by, order := a.By, a.Order
	if by == "" {
		by = s.Query.SortBy
	}
	if order == "" {
		order = s.Query.SortOrder
	}
	if s.Query.SortBy == by && s.Query.SortOrder == order {
		return s
	}
	s.Query.SortBy = by
	s.Query.SortOrder = order
	s.Page = 1
	return s
}

func (a SetPageSize) apply(s ViewState) ViewState {
	if !ValidPageSize(a.Size) || a.Size == s.PageSize {
		return s
	}
	s.PageSize = a.Size
	s.Page = 1
	return s
}

func (a SetPage) apply(s ViewState) ViewState {
	upper := max(1, a.TotalPages)
	s.Page = min(max(a.Page, 1), upper)
	return s
}

func (a DataReplaced) apply(s ViewState) ViewState {
	if a.Version <= s.DataVersion {
		return s
	}
	s.DataVersion = a.Version
	s.Page = 1
	return s
}

func (ResetFilters) apply(s ViewState) ViewState {
	q := DefaultQuery()
	if s.Query == q {
		return s
	}
	s.Query = q
	s.Page = 1
	return s
}
