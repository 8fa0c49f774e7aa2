package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdispatch/internal/logging"
)

type received struct {
	sig, ts, typ string
	body         []byte
}

func newReceiver(t *testing.T, status int) (*httptest.Server, func() []received) {
	t.Helper()
	var mu sync.Mutex
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, received{sig: r.Header.Get("X-Signature"), ts: r.Header.Get("X-Signature-Timestamp"), typ: r.Header.Get("X-Event-Type"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestProcessOnceDeliversSignedEvent(t *testing.T) {
	srv, got := newReceiver(t, http.StatusOK)
	n := NewNotifier([]string{srv.URL}, "secret", 3, logging.Discard())
	n.HTTP = srv.Client()

	n.Emit("booking.assigned", map[string]any{"bookingId": "b1"})
	require.Equal(t, 1, n.Pending())
	n.processOnce()

	reqs := got()
	require.Len(t, reqs, 1)
	assert.Equal(t, "booking.assigned", reqs[0].typ)
	assert.True(t, VerifyHMAC("secret", reqs[0].ts, reqs[0].body, reqs[0].sig, time.Minute, time.Now()))
	assert.False(t, VerifyHMAC("other", reqs[0].ts, reqs[0].body, reqs[0].sig, time.Minute, time.Now()))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].body, &payload))
	assert.Equal(t, "booking.assigned", payload["type"])
	assert.Equal(t, "b1", payload["data"].(map[string]any)["bookingId"])
	assert.Equal(t, 0, n.Pending())
}

func TestProcessOnceRetriesThenGivesUp(t *testing.T) {
	srv, got := newReceiver(t, http.StatusInternalServerError)
	n := NewNotifier([]string{srv.URL}, "", 2, logging.Discard())
	n.HTTP = srv.Client()
	clock := time.Unix(1_700_000_000, 0)
	n.now = func() time.Time { return clock }

	n.Emit("booking.created", nil)
	n.processOnce()
	require.Len(t, got(), 1)
	assert.Empty(t, got()[0].sig)
	assert.Equal(t, 1, n.Pending(), "failed delivery is requeued")

	// not due yet
	n.processOnce()
	assert.Len(t, got(), 1)

	clock = clock.Add(nextBackoff(0))
	n.processOnce()
	assert.Len(t, got(), 2)
	assert.Equal(t, 0, n.Pending(), "dropped after max attempts")
}

func TestEmitFansOutPerReceiver(t *testing.T) {
	n := NewNotifier([]string{"http://a.invalid", "http://b.invalid"}, "", 1, logging.Discard())
	n.Emit("driver.updated", map[string]any{"driverId": "d1"})
	assert.Equal(t, 2, n.Pending())
}

func TestVerifyHMACRejectsStaleTimestamp(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	sig := SignHMAC("secret", ts, []byte(`{}`))
	assert.True(t, VerifyHMAC("secret", "1700000000", []byte(`{}`), sig, time.Minute, ts.Add(30*time.Second)))
	assert.False(t, VerifyHMAC("secret", "1700000000", []byte(`{}`), sig, time.Minute, ts.Add(2*time.Minute)))
	assert.False(t, VerifyHMAC("secret", "nope", []byte(`{}`), sig, time.Minute, ts))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 4*time.Second, nextBackoff(2))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestStartClose(t *testing.T) {
	n := NewNotifier(nil, "", 1, logging.Discard())
	n.Start()
	n.Close()
}
