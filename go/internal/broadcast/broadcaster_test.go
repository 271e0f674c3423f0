package broadcast

import "testing"

func TestDefaultConnectOptions_KeepsClientRedialing(t *testing.T) {
	opts := DefaultConnectOptions()

	// A bounded reconnect count makes the client close the connection
	// permanently after a broker outage, and resubscription can then
	// never succeed. Recovery depends on the dial loop staying alive.
	if opts.MaxReconnects >= 0 {
		t.Fatalf("MaxReconnects = %d, want unlimited (negative)", opts.MaxReconnects)
	}
	if opts.ReconnectWait <= 0 {
		t.Fatalf("ReconnectWait = %v, want a positive backoff", opts.ReconnectWait)
	}
}
