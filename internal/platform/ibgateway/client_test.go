package ibgateway

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-process TCP endpoint speaking the gateway wire
// protocol. Each connection is served on its own goroutine, so a request
// handler's writes to the connection are serialized.
type fakeGateway struct {
	ln        net.Listener
	onRequest func(conn net.Conn, fields []string)

	mu      sync.Mutex
	started []string // client ids seen in START_API handshakes
}

func startFakeGateway(t *testing.T, onRequest func(conn net.Conn, fields []string)) (*fakeGateway, Config) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")

	f := &fakeGateway{ln: ln, onRequest: onRequest}
	go f.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })

	cfg := Config{
		Host:           "127.0.0.1",
		Port:           ln.Addr().(*net.TCPAddr).Port,
		ClientID:       123,
		OptionClientID: 124,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 1 * time.Second,
		SettleDelay:    time.Millisecond,
		Cooldown:       0,
	}
	return f, cfg
}

func (f *fakeGateway) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.serve(conn)
	}
}

func (f *fakeGateway) serve(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		fields, err := readMessage(br)
		if err != nil {
			return
		}
		switch fields[0] {
		case msgStartAPI:
			f.mu.Lock()
			f.started = append(f.started, fields[1])
			f.mu.Unlock()
			_ = writeMessage(conn, msgAck)
		case msgReqHist:
			if f.onRequest != nil {
				f.onRequest(conn, fields)
			}
		}
	}
}

func (f *fakeGateway) handshakes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func writeBar(conn net.Conn, reqID, date string, close float64, volume int64) {
	_ = writeMessage(conn, msgHistBar, reqID, date,
		fmt.Sprintf("%g", close-1), fmt.Sprintf("%g", close+1),
		fmt.Sprintf("%g", close-2), fmt.Sprintf("%g", close),
		fmt.Sprintf("%d", volume))
}

func TestGateway_ConnectHandshake(t *testing.T) {
	t.Parallel()

	f, cfg := startFakeGateway(t, nil)
	gw := NewGateway(cfg, nil)

	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, []string{"123"}, f.handshakes(), "handshake must carry the client identity")
}

func TestGateway_ConnectHandshakeNeverAcked(t *testing.T) {
	t.Parallel()

	// An endpoint that accepts the connection but stays silent. The failure
	// is connection-class, not a retryable request timeout.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	cfg := Config{
		Host:           "127.0.0.1",
		Port:           ln.Addr().(*net.TCPAddr).Port,
		ClientID:       123,
		ConnectTimeout: 100 * time.Millisecond,
		RequestTimeout: time.Second,
		SettleDelay:    time.Millisecond,
	}

	gw := NewGateway(cfg, nil)
	_, err = gw.Connect(context.Background(), cfg.ClientID)
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.NotErrorIs(t, err, ErrRequestTimeout)
}

func TestClient_FetchSeries(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		id := fields[1]
		writeBar(conn, id, "20240102", 100.5, 1000)
		writeBar(conn, id, "20240103", 101.25, 1200)
		_ = writeMessage(conn, msgHistEnd, id)
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	bars, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 Y", "1 day", DataTrades)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "20240102", bars[0].Date)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, int64(1000), bars[0].Volume)
	assert.Equal(t, 101.25, bars[1].Close)
}

func TestClient_FetchSeries_EmptySeries(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		_ = writeMessage(conn, msgHistEnd, fields[1])
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	bars, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	require.NoError(t, err, "an empty series is not an error")
	assert.Empty(t, bars)
}

func TestClient_FetchSeries_DemuxInterleaved(t *testing.T) {
	t.Parallel()

	// The handler holds the first request and answers both once the second
	// arrives, interleaving the two streams' events.
	var pendingID string
	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		if pendingID == "" {
			pendingID = fields[1]
			return
		}
		first, second := pendingID, fields[1]
		writeBar(conn, second, "20240102", 200, 1)
		writeBar(conn, first, "20240102", 100, 1)
		writeBar(conn, first, "20240103", 101, 1)
		writeBar(conn, second, "20240103", 201, 1)
		_ = writeMessage(conn, msgHistEnd, second)
		_ = writeMessage(conn, msgHistEnd, first)
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	type result struct {
		bars []RawBar
		err  error
	}
	tradesCh := make(chan result, 1)
	ivCh := make(chan result, 1)

	go func() {
		bars, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
		tradesCh <- result{bars, err}
	}()
	go func() {
		bars, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataImpliedVol)
		ivCh <- result{bars, err}
	}()

	trades := <-tradesCh
	ivs := <-ivCh
	require.NoError(t, trades.err)
	require.NoError(t, ivs.err)

	// Each caller must see only its own stream. Which caller got which
	// request id is scheduling-dependent, so assert on the partition: one
	// stream carries the 100s, the other the 200s, never mixed.
	require.Len(t, trades.bars, 2)
	require.Len(t, ivs.bars, 2)

	sum := func(bars []RawBar) float64 { return bars[0].Close + bars[1].Close }
	a, b := sum(trades.bars), sum(ivs.bars)
	assert.ElementsMatch(t, []float64{201, 401}, []float64{a, b}, "streams were mixed across requests")

	// Events arrived in chronological order within each stream.
	for _, r := range [][]RawBar{trades.bars, ivs.bars} {
		assert.Equal(t, "20240102", r[0].Date)
		assert.Equal(t, "20240103", r[1].Date)
	}
}

func TestClient_FetchSeries_NonFatalError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		calls++
		if calls == 1 {
			_ = writeMessage(conn, msgErr, fields[1], "162", "historical data query returned no data")
			return
		}
		_ = writeMessage(conn, msgHistEnd, fields[1])
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 162, perr.Code)
	assert.False(t, perr.Fatal())

	// A non-fatal error is scoped to its request; the session stays usable.
	require.NoError(t, client.Err())
	bars, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestClient_FetchSeries_FatalErrorReleasesAllWaiters(t *testing.T) {
	t.Parallel()

	var once sync.Once
	seen := 0
	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		seen++
		if seen == 2 {
			once.Do(func() {
				_ = writeMessage(conn, msgErr, "0", "1100", "connectivity between server and gateway lost")
			})
		}
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
			errCh <- err
		}()
	}

	for i := 0; i < 2; i++ {
		err := <-errCh
		var perr *ProviderError
		require.ErrorAs(t, err, &perr, "all waiters must be released on a fatal error")
		assert.True(t, perr.Fatal())
	}

	// The session is poisoned: new requests fail immediately.
	require.Error(t, client.Err())
	_, err = client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	require.Error(t, err)
}

func TestClient_FetchSeries_Timeout(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		// Never answer.
	})
	cfg.RequestTimeout = 100 * time.Millisecond

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	assert.ErrorIs(t, err, ErrRequestTimeout)

	// The timeout does not poison the session.
	assert.NoError(t, client.Err())
}

func TestClient_FetchSeries_ContextCancel(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, func(conn net.Conn, fields []string) {
		// Never answer.
	})

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.FetchSeries(ctx, Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_FetchSeries_AfterClose(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, nil)

	gw := NewGateway(cfg, nil)
	client, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.FetchSeries(context.Background(), Stock("AAPL"), "", "1 M", "1 day", DataTrades)
	require.Error(t, err)
}

func TestGateway_CooldownBetweenSessions(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, nil)
	cfg.Cooldown = 200 * time.Millisecond

	gw := NewGateway(cfg, nil)

	first, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	begin := time.Now()
	second, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	defer second.Close()

	assert.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond,
		"reconnecting the same identity must wait out the cooldown")
}

func TestGateway_CooldownDoesNotBlockOtherIdentities(t *testing.T) {
	t.Parallel()

	_, cfg := startFakeGateway(t, nil)
	cfg.Cooldown = time.Second

	gw := NewGateway(cfg, nil)

	first, err := gw.Connect(context.Background(), cfg.ClientID)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	begin := time.Now()
	second, err := gw.Connect(context.Background(), cfg.OptionClientID)
	require.NoError(t, err)
	defer second.Close()

	assert.Less(t, time.Since(begin), 500*time.Millisecond,
		"cooldown is per identity, a different client id must not wait")
}

func TestProviderError_Fatal(t *testing.T) {
	t.Parallel()

	for _, code := range []int{502, 504, 1100} {
		assert.True(t, (&ProviderError{Code: code}).Fatal(), "code %d must be fatal", code)
	}
	for _, code := range []int{162, 200, 2104} {
		assert.False(t, (&ProviderError{Code: code}).Fatal(), "code %d must not be fatal", code)
	}
}
