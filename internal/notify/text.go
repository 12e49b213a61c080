package notify

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-sweeper/internal/keys"
)

// ExplorerTxURL is the transaction link prefix used in success messages.
const ExplorerTxURL = "https://solscan.io/tx/"

// FormatSOL renders lamports as SOL with the given number of decimals.
func FormatSOL(lamports uint64, places int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).StringFixed(places)
}

// ShortWallet is the wallet form used in per-event messages.
func ShortWallet(pubkey string) string {
	return keys.ShortKey(pubkey, 4, 3)
}

// DepositText announces received lamports.
func DepositText(pubkey string, received uint64) string {
	return fmt.Sprintf("Wallet : %s\n\nReceived : %s SOL", ShortWallet(pubkey), FormatSOL(received, 4))
}

// ForwardSuccessText announces a confirmed sweep.
func ForwardSuccessText(pubkey string, sent uint64, latency time.Duration, signature string) string {
	return fmt.Sprintf("Wallet : %s\n\nSent : %s SOL ✅ (%dms)\n🔗 %s%s",
		ShortWallet(pubkey), FormatSOL(sent, 4), latency.Milliseconds(), ExplorerTxURL, signature)
}

// ForwardFailureText announces a failed sweep.
func ForwardFailureText(pubkey string) string {
	return fmt.Sprintf("Wallet : %s\n\nSending failed ❌", ShortWallet(pubkey))
}

// ReportText is the periodic aggregate health report.
func ReportText(active, failed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Monitoring report:\n✅ Active wallets: %d\n❌ Stopped wallets: %d\n📈 Total wallets: %d\n\n",
		active, failed, active+failed)
	if failed > 0 {
		fmt.Fprintf(&b, "⚠️ %d wallet(s) stopped because of RPC problems\n💡 Use /status for details", failed)
	} else {
		b.WriteString("🎯 All wallets are working normally")
	}
	return b.String()
}

// StartedText summarizes a monitoring start.
func StartedText(monitored, submitted int) string {
	if submitted > monitored {
		return fmt.Sprintf("✅ Monitoring started for %d of %d wallets\n💡 %d wallet(s) ignored: not enough RPC endpoints",
			monitored, submitted, submitted-monitored)
	}
	return fmt.Sprintf("✅ Monitoring started for %d wallets", monitored)
}

// StoppedAllText announces that monitoring was fully stopped.
const StoppedAllText = "⏹️ Monitoring stopped for all wallets"
