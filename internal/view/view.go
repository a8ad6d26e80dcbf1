package view

import (
	"github.com/shopspring/decimal"
)

// PeerUser is one entry of the online presence list.
type PeerUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// View is the presentation collaborator driven by the sync engine. The
// engine decides when something is shown; implementations decide how.
type View interface {
	ShowLoginView()
	ShowDashboardView()
	// RenderPresenceList replaces the whole list; it is never a patch.
	RenderPresenceList(peers []PeerUser)
	RenderBalance(balance decimal.Decimal)
	RenderWalletID(walletID string)
	NotifyFailure(message string)
	// PromptForAmount returns the entered amount, or ok=false when cancelled.
	PromptForAmount() (amount string, ok bool)
}

// Screen names reported in snapshots.
const (
	ScreenLogin     = "login"
	ScreenDashboard = "dashboard"
)

// BalanceText formats a balance the way the dashboard shows it.
func BalanceText(balance decimal.Decimal) string {
	return "CC " + balance.String()
}

// WalletText formats a wallet id the way the dashboard shows it.
func WalletText(walletID string) string {
	return "Wallet ID: " + walletID
}
