package enum

// ── Buckets (classification targets for display columns) ──

const (
	BucketPlaced    = "placed"
	BucketOngoing   = "ongoing"
	BucketCompleted = "completed"
)

// ── Menu item statuses as the upstream feed reports them ──
// Matching is case-insensitive; the feed is not consistent about casing.

const (
	ItemStatusCooking    = "cooking"
	ItemStatusOngoing    = "ongoing"
	ItemStatusProcessing = "processing"
	ItemStatusServed     = "served"
	ItemStatusReady      = "ready"
	ItemStatusCompleted  = "completed"
	ItemStatusPaid       = "paid"
)

// ── Date range filters for the order feed ──

const (
	FilterAll       = "all"
	FilterToday     = "today"
	FilterYesterday = "yesterday"
	FilterLast7     = "last7days"
	FilterLast30    = "last30days"
	FilterThisMonth = "thisMonth"
	FilterLastMonth = "lastMonth"
	FilterCustom    = "custom"
)

// ValidFilter reports whether s is a recognized date range filter.
func ValidFilter(s string) bool {
	switch s {
	case FilterAll, FilterToday, FilterYesterday, FilterLast7,
		FilterLast30, FilterThisMonth, FilterLastMonth, FilterCustom:
		return true
	}
	return false
}

// ── Upstream roles allowed to run a customer display ──

const (
	RoleCDS     = "cds"
	RoleManager = "manager"
)

// ── Upstream request constants ──

const (
	AppType   = "cds"
	AppSource = "admin"
)
