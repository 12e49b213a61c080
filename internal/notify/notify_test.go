package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPubkey = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestFormatSOL(t *testing.T) {
	tests := []struct {
		lamports uint64
		places   int32
		want     string
	}{
		{0, 4, "0.0000"},
		{995_000, 4, "0.0010"},
		{1_000_000_000, 4, "1.0000"},
		{1_234_567_890, 4, "1.2346"},
		{1, 9, "0.000000001"},
		{18_446_744_073_709_551_615, 2, "18446744073.71"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSOL(tt.lamports, tt.places), "lamports=%d", tt.lamports)
	}
}

func TestTexts(t *testing.T) {
	assert.Equal(t, "9WzD...WWM", ShortWallet(testPubkey))

	assert.Equal(t, "Wallet : 9WzD...WWM\n\nReceived : 0.0010 SOL", DepositText(testPubkey, 1_000_000))
	assert.Equal(t, "Wallet : 9WzD...WWM\n\nSending failed ❌", ForwardFailureText(testPubkey))

	success := ForwardSuccessText(testPubkey, 995_000, 1500*time.Millisecond, "5sig")
	assert.Contains(t, success, "0.0010 SOL")
	assert.Contains(t, success, "(1500ms)")
	assert.Contains(t, success, "https://solscan.io/tx/5sig")

	assert.Contains(t, ReportText(6, 2), "Total wallets: 8")
	assert.Contains(t, ReportText(6, 2), "2 wallet(s) stopped")
	assert.Contains(t, ReportText(8, 0), "All wallets are working normally")

	assert.Equal(t, "✅ Monitoring started for 8 wallets", StartedText(8, 8))
	assert.Contains(t, StartedText(8, 10), "2 wallet(s) ignored")
}

type failing struct{}

func (failing) Notify(context.Context, Message) error { return errors.New("down") }

func TestMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, failing{}, &b}

	err := m.Notify(context.Background(), Message{Owner: "1", Kind: KindReport, Text: "x"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, a.Messages(), 1)
	assert.Len(t, b.Messages(), 1, "later notifiers still receive the message")
}

func TestSend_StampsTime(t *testing.T) {
	var r Recorder
	require.NoError(t, Send(context.Background(), &r, Message{Owner: "1", Kind: KindDeposit}))

	msgs := r.OfKind(KindDeposit)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Time.IsZero())
	assert.Empty(t, r.OfKind(KindReport))

	r.Reset()
	assert.Empty(t, r.Messages())
}

func TestTelegram_Notify(t *testing.T) {
	var got sendMessageRequest
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	tg := NewTelegram("123:abc", WithTelegramAPI(server.URL))
	err := tg.Notify(context.Background(), Message{Owner: "42", Kind: KindDeposit, Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "hello", got.Text)
	assert.True(t, got.DisableWebPagePreview)
}

func TestTelegram_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg := NewTelegram("t", WithTelegramAPI(server.URL), WithTelegramHTTPClient(server.Client()))
	err := tg.Notify(context.Background(), Message{Owner: "1", Text: "x"})
	assert.ErrorContains(t, err, "chat not found")
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "sweeper.forward_success.42", RoutingKey(Message{Owner: "42", Kind: KindForwardSuccess}))
}
