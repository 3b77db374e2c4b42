// utils/format.go
package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usdPrinter = message.NewPrinter(language.English)

// FormatUSDC renders a decimal USDC amount for logs and receipts, with
// thousand separators ("1,234.50 USDC").
func FormatUSDC(amount float64) string {
	return usdPrinter.Sprintf("%.2f USDC", amount)
}
