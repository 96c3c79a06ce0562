package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aegis/internal/security"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memSink struct{ alerts []Alert }

func (m *memSink) Send(_ context.Context, a Alert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func setup(t *testing.T) (*Simulator, *security.Registry, *memSink) {
	t.Helper()
	sink := &memSink{}
	sim := New(WithAlertSink(sink), WithClock(func() time.Time { return fixed }))
	reg := security.NewRegistry()
	sim.Register(reg)
	return sim, reg, sink
}

func dispatch(t *testing.T, reg *security.Registry, mode security.Mode, words []string, args ...any) (any, error) {
	t.Helper()
	h, phrase, n, ok := reg.Lookup(mode, words)
	require.True(t, ok, "no handler for %v in %s", words, mode)
	var all []any
	for _, w := range words[n:] {
		all = append(all, w)
	}
	all = append(all, args...)
	return h.Handle(context.Background(), security.Request{Mode: mode, Phrase: phrase, Args: all})
}

func TestBlockIP(t *testing.T) {
	sim, reg, _ := setup(t)
	res, err := dispatch(t, reg, security.Blue, []string{"block", "ip"}, "10.0.0.5", "port", 22.0)
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "DROP", m["action"])
	assert.Equal(t, "22", m["port"])
	assert.Equal(t, "DROP", sim.Firewall.Verdict("10.0.0.5"))
	assert.Equal(t, "ACCEPT", sim.Firewall.Verdict("10.0.0.6"))

	_, err = dispatch(t, reg, security.Blue, []string{"block", "ip"}, "not-an-ip")
	assert.EqualError(t, err, `invalid address "not-an-ip"`)

	_, err = dispatch(t, reg, security.Blue, []string{"block", "ip"})
	assert.EqualError(t, err, "block ip needs an address")
}

func TestFirewallVerdictUsesNewestRule(t *testing.T) {
	fw := NewFirewall(time.Now)
	_, err := fw.AddRule("DROP", "10.0.0.0/8", "")
	require.NoError(t, err)
	assert.Equal(t, "DROP", fw.Verdict("10.1.2.3"))

	time.Sleep(time.Millisecond)
	allow, err := fw.AddRule("ACCEPT", "10.1.2.3", "")
	require.NoError(t, err)
	assert.Equal(t, "ACCEPT", fw.Verdict("10.1.2.3"))

	require.NoError(t, fw.Remove(allow.ID))
	assert.Equal(t, "DROP", fw.Verdict("10.1.2.3"))
	assert.Error(t, fw.Remove(allow.ID))
}

func TestDefensiveState(t *testing.T) {
	sim, reg, _ := setup(t)
	_, err := dispatch(t, reg, security.Blue, []string{"monitor", "traffic"})
	require.NoError(t, err)
	_, err = dispatch(t, reg, security.Blue, []string{"trace", "source"})
	require.NoError(t, err)
	res, err := dispatch(t, reg, security.Blue, []string{"isolate"}, "192.168.1.9")
	require.NoError(t, err)
	_, err = dispatch(t, reg, security.Blue, []string{"firewall", "enable"})
	require.NoError(t, err)

	assert.Equal(t, []string{"traffic"}, sim.Monitored())
	assert.Equal(t, []string{"source"}, sim.Traces())
	assert.Equal(t, []string{"192.168.1.9"}, sim.Quarantined())
	assert.NotEmpty(t, res.(map[string]any)["rule"])
	assert.True(t, sim.Firewall.Enabled())
}

func TestScanDependsOnMode(t *testing.T) {
	_, reg, _ := setup(t)
	res, err := dispatch(t, reg, security.Blue, []string{"scan"}, "<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Equal(t, "xss", res.(map[string]any)["threat"])

	first, err := dispatch(t, reg, security.Red, []string{"scan"}, "10.0.0.1")
	require.NoError(t, err)
	again, err := dispatch(t, reg, security.Red, []string{"scan"}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, true, first.(map[string]any)["simulated"])
}

func TestExploit(t *testing.T) {
	_, reg, _ := setup(t)
	res, err := dispatch(t, reg, security.Red, []string{"exploit"}, "smb")
	require.NoError(t, err)
	assert.Equal(t, "MS17-010", res.(map[string]any)["cve"])

	_, err = dispatch(t, reg, security.Red, []string{"exploit"}, "ssh")
	assert.ErrorContains(t, err, "failed (simulated)")

	_, err = dispatch(t, reg, security.Red, []string{"exploit"}, "toaster")
	assert.EqualError(t, err, `no known exploit for "toaster"`)

	_, _, _, ok := reg.Lookup(security.Blue, []string{"exploit"})
	assert.False(t, ok)
}

func TestAlertSeverity(t *testing.T) {
	_, reg, sink := setup(t)
	_, err := dispatch(t, reg, security.Red, []string{"alert"}, "critical", "breach detected")
	require.NoError(t, err)
	_, err = dispatch(t, reg, security.Blue, []string{"alert"}, "heads up")
	require.NoError(t, err)

	require.Len(t, sink.alerts, 2)
	assert.Equal(t, "critical", sink.alerts[0].Severity)
	assert.Equal(t, "breach detected", sink.alerts[0].Message)
	assert.Equal(t, "red", sink.alerts[0].Mode)
	assert.Equal(t, "medium", sink.alerts[1].Severity)
	assert.Equal(t, fixed, sink.alerts[1].Time)
}

func TestWebsocketSink(t *testing.T) {
	received := make(chan Alert, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var a Alert
		if json.Unmarshal(data, &a) == nil {
			received <- a
		}
	}))
	defer srv.Close()

	sink := NewWebsocketSink("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Send(ctx, Alert{ID: "a1", Mode: "blue", Severity: "high", Message: "port scan", Time: fixed}))

	select {
	case a := <-received:
		assert.Equal(t, "a1", a.ID)
		assert.Equal(t, "port scan", a.Message)
		assert.True(t, fixed.Equal(a.Time))
	case <-ctx.Done():
		t.Fatal("alert not received")
	}
}

func TestWebsocketSinkDialFailure(t *testing.T) {
	sink := NewWebsocketSink("ws://127.0.0.1:1/alerts")
	err := sink.Send(context.Background(), Alert{ID: "x"})
	assert.ErrorContains(t, err, "websocket dial failed")
}
