package cache

import "fmt"

// Cache keys are namespaced "<domain>:<scope>:<id>[:<year>]" strings.
// Every read site and every invalidation site must go through these
// builders; the coordinator has no dependency graph to fall back on.

// UserFlowKey caches the monthly budget-vs-actual flow of one year.
func UserFlowKey(userID int64, year int) string {
	return fmt.Sprintf("userFlow:%d:%d", userID, year)
}

// UserTransactionsKey caches a user's recent transactions.
func UserTransactionsKey(userID int64) string {
	return fmt.Sprintf("transactions:user:%d", userID)
}

// YearSummaryKey caches a user's yearly summary figures.
func YearSummaryKey(userID int64, year int) string {
	return fmt.Sprintf("yearSummary:%d:%d", userID, year)
}

// CardKey caches a card's open statements.
func CardKey(cardID int64) string {
	return fmt.Sprintf("card:%d", cardID)
}

// BillInstallmentsKey caches the parcels attached to one statement.
func BillInstallmentsKey(billID int64) string {
	return fmt.Sprintf("parcels:bill:%d", billID)
}

// ReconcileLockKey serializes reconcile runs for one (user, year).
func ReconcileLockKey(userID int64, year int) string {
	return fmt.Sprintf("lock:reconcile:%d:%d", userID, year)
}
