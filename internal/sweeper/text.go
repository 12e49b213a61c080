package sweeper

import (
	"fmt"
	"strings"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/notify"
)

const commandList = `/add_wallets - add wallets to monitor
/resume_monitoring - resume monitoring of saved wallets
/status - show wallet status
/stop - stop specific wallets
/stop_monitoring - stop all wallets
/clear_wallets - delete all saved wallets
/help - show help`

// HelpText describes the available commands.
const HelpText = `📚 Usage guide:

🔑 Adding wallets:
1. Use /add_wallets
2. Send the private keys, one per line
   📎 or send a TXT file with the keys
3. Wallets are saved in the local database
4. Monitoring starts immediately

💾 Local database:
• Every wallet is saved automatically
• Monitoring can be resumed after a restart

📊 Wallet monitoring:
• Wallets are spread over the configured RPC endpoints
• Incoming SOL is forwarded immediately
• You get a notification for every operation

⚙️ Commands:
` + commandList

// Texts of command replies.
const (
	ClearedText        = "🗑️ All saved wallets were deleted"
	NothingToResume    = "❌ No saved wallets to resume\nUse /add_wallets to add new wallets"
	NothingMonitored   = "❌ No wallets are being monitored"
	NoSelectorsText    = "❌ No addresses were entered"
	NoEndpointsText    = "❌ No RPC URLs available for monitoring!\n💡 Set the environment variables RPC_URL, RPC_URL2, RPC_URL3... up to RPC_URL10"
	noneMonitoredShort = "📊 No wallets are being monitored"
)

func welcomeText(saved int) string {
	var b strings.Builder
	b.WriteString("🔥 Welcome to the Solana wallet monitoring bot!\n\n📋 Available commands:\n")
	b.WriteString(commandList)
	if saved > 0 {
		fmt.Fprintf(&b, "\n\n💾 You have %d saved wallet(s)\n🔄 Use /resume_monitoring to resume monitoring", saved)
	} else {
		b.WriteString("\n\n💡 To start monitoring, use /add_wallets and send the private keys")
	}
	return b.String()
}

func noValidKeysText(lines int) string {
	return fmt.Sprintf("❌ No valid keys found\n📄 %d line(s) checked\n💡 Make sure the keys are valid Base58", lines)
}

func filteredText(lines, valid int) string {
	return fmt.Sprintf("🔍 Content filtered:\n📄 Total lines: %d\n🔑 Valid keys: %d\n❌ Ignored: %d line(s)",
		lines, valid, lines-valid)
}

// stopKey is the key form used in stop results.
func stopKey(pubkey string) string {
	return keys.ShortKey(pubkey, 8, 4)
}

func selectorPreview(sel string) string {
	if len(sel) > 20 {
		sel = sel[:20]
	}
	return sel + "..."
}

func stopText(stopped []string, notFound []string, remaining int) string {
	var b strings.Builder
	if len(stopped) == 0 {
		b.WriteString("❌ No matching wallets found\n")
		if len(notFound) > 0 {
			b.WriteString("\n❌ Addresses not found:\n")
			b.WriteString(strings.Join(notFound, "\n"))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "✅ Stopped %d wallet(s)\n\n🛑 Stopped wallets:\n", len(stopped))
	for i, pk := range stopped {
		fmt.Fprintf(&b, "%d. %s\n", i+1, stopKey(pk))
	}
	if len(notFound) > 0 {
		fmt.Fprintf(&b, "\n❌ Addresses not found (%d):\n", len(notFound))
		for _, sel := range notFound {
			fmt.Fprintf(&b, "• %s\n", selectorPreview(sel))
		}
	}
	fmt.Fprintf(&b, "\n📊 Remaining wallets: %d", remaining)
	return b.String()
}

func statusText(r *StatusReport) string {
	if len(r.Accounts) == 0 {
		if r.Stats != nil && r.Stats.Active > 0 {
			return fmt.Sprintf("📊 No wallets are being monitored\n💾 You have %d saved wallet(s) in the database\n🔄 Use /resume_monitoring to resume monitoring", r.Stats.Active)
		}
		return noneMonitoredShort
	}

	saved := len(r.Accounts)
	if r.Stats != nil {
		saved = r.Stats.Total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Wallet status (%d wallets):\n\n", saved)

	b.WriteString("RPC Endpoints :")
	totalErrors := 0
	for _, ep := range r.Endpoints {
		if ep.Accounts == 0 {
			continue
		}
		icon := "🟢"
		if !ep.Healthy {
			icon = "🔴"
		}
		url := ep.URL
		if len(url) > 50 {
			url = url[:50]
		}
		fmt.Fprintf(&b, "\n  %s...%s (%d wallets, %d errors)", url, icon, ep.Accounts, ep.Errors)
		totalErrors += ep.Errors
	}
	fmt.Fprintf(&b, "\n\nErrors: %d/%d\n", totalErrors, r.Threshold)

	b.WriteString("\n🔹 Wallets:\n")
	for _, a := range r.Accounts {
		mark := ""
		if a.Retired {
			mark = " ⛔"
		}
		fmt.Fprintf(&b, "`%s`%s\n", a.PublicKey, mark)
	}

	fmt.Fprintf(&b, "\n🎯 Destination: %s\n\n", r.Destination)

	b.WriteString("💾 Database stats:\n")
	if r.Stats != nil {
		fmt.Fprintf(&b, "   📁 Saved wallets: %d\n", r.Stats.Total)
	}
	fmt.Fprintf(&b, "   ✅ Active wallets: %d\n", len(r.Accounts))
	if r.Stats != nil && r.Stats.FirstAddedAt != nil {
		fmt.Fprintf(&b, "   📅 First added: %s\n", r.Stats.FirstAddedAt.Format("2006-01-02"))
	}

	if len(r.RecentSweeps) > 0 {
		b.WriteString("\n🔁 Recent sweeps:\n")
		for _, s := range r.RecentSweeps {
			if s.Reason != "" {
				fmt.Fprintf(&b, "• %s %s %s SOL (%s)\n", notify.ShortWallet(s.Account), s.Status, notify.FormatSOL(s.Observed, 4), s.Reason)
				continue
			}
			fmt.Fprintf(&b, "• %s %s %s SOL\n", notify.ShortWallet(s.Account), s.Status, notify.FormatSOL(s.Amount, 4))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
