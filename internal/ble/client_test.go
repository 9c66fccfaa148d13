package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/packet"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

var (
	startAPIModeBytes = []byte{0x01, 0x05, 0x01, 0x00, 0x67}
	batteryResponse   = []byte{0x02, 0x02, 0x01, 0x00, 0x57}
)

func quietOpts() ClientOptions {
	opts := DefaultClientOptions()
	opts.StartAPIMode = false
	opts.ReconnectMax = 1
	return opts
}

func mustConnect(t *testing.T, adapter *mockAdapter, opts ClientOptions) *Client {
	t.Helper()
	client := NewClient(adapter, testAddress, opts)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientConnectStartsAPIMode(t *testing.T) {
	adapter := newMockAdapter()
	client := mustConnect(t, adapter, DefaultClientOptions())

	if !client.Connected() {
		t.Fatal("client should be connected after Connect()")
	}
	char := adapter.latestConnection().apiChar
	waitFor(t, func() bool { return len(char.Writes()) == 1 })
	if got := char.Writes()[0]; !bytes.Equal(got, startAPIModeBytes) {
		t.Errorf("first write = % x, want % x", got, startAPIModeBytes)
	}
}

func TestClientSendsAPIConfigAfterAPIMode(t *testing.T) {
	adapter := newMockAdapter()
	opts := DefaultClientOptions()
	opts.APIConfig = &packet.APIConfig{Datastream: packet.DatastreamRaw, Spectrogram: true, SampleRate: 400}
	mustConnect(t, adapter, opts)

	char := adapter.latestConnection().apiChar
	waitFor(t, func() bool { return len(char.Writes()) == 2 })
	writes := char.Writes()
	if !bytes.Equal(writes[0], startAPIModeBytes) {
		t.Errorf("first write = % x, want % x", writes[0], startAPIModeBytes)
	}
	want := packet.Encode(packet.ModifyAPIConfig(*opts.APIConfig), packet.DefaultLayout())
	if !bytes.Equal(writes[1], want) {
		t.Errorf("second write = % x, want % x", writes[1], want)
	}
}

func TestClientDispatchesNotifications(t *testing.T) {
	adapter := newMockAdapter()
	client := mustConnect(t, adapter, quietOpts())

	var mu sync.Mutex
	var levels []float32
	engine.Subscribe(client, packet.EventBattery, func(b packet.BatteryStatus) error {
		mu.Lock()
		defer mu.Unlock()
		levels = append(levels, b.Percentage)
		return nil
	})

	char := adapter.latestConnection().apiChar
	char.SimulateNotification(batteryResponse[:3])
	char.SimulateNotification(batteryResponse[3:])

	mu.Lock()
	defer mu.Unlock()
	if len(levels) != 1 || levels[0] != 87 {
		t.Errorf("battery levels = %v, want [87]", levels)
	}
}

func TestClientQueuesDuringDisconnect(t *testing.T) {
	adapter := newMockAdapter()
	opts := quietOpts()
	opts.QueueSize = 4
	client := NewClient(adapter, testAddress, opts)

	// Client starts disconnected, Send should queue
	if err := client.Send(packet.IdentifyQuery()); err != nil {
		t.Fatalf("Send() while disconnected should not error, got: %v", err)
	}
	if client.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1", client.QueueLen())
	}
}

func TestClientQueueOverflow(t *testing.T) {
	opts := quietOpts()
	opts.QueueSize = 2
	client := NewClient(newMockAdapter(), testAddress, opts)

	_ = client.Send(packet.IdentifyQuery())
	_ = client.Send(packet.RecenterQuery())
	_ = client.Send(packet.BatteryQuery()) // should drop oldest

	if client.QueueLen() != 2 {
		t.Errorf("QueueLen() = %d, want 2 (overflow should drop oldest)", client.QueueLen())
	}
	client.mu.Lock()
	first := client.queue[0].ID
	client.mu.Unlock()
	if first != packet.IDRecenter {
		t.Errorf("oldest held query = %s, want recenter", first)
	}
}

func TestClientFlushQueueOnConnect(t *testing.T) {
	adapter := newMockAdapter()
	client := NewClient(adapter, testAddress, quietOpts())
	t.Cleanup(func() { client.Close() })

	_ = client.Send(packet.IdentifyQuery())
	_ = client.Send(packet.RecenterQuery())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if client.QueueLen() != 0 {
		t.Errorf("QueueLen() after connect = %d, want 0", client.QueueLen())
	}

	char := adapter.latestConnection().apiChar
	waitFor(t, func() bool { return len(char.Writes()) == 2 })
	writes := char.Writes()
	if writes[0][1] != byte(packet.IDIdentify) || writes[1][1] != byte(packet.IDRecenter) {
		t.Errorf("flushed writes = % x, want identify then recenter", writes)
	}
}

func TestClientRequest(t *testing.T) {
	adapter := newMockAdapter()
	client := mustConnect(t, adapter, quietOpts())
	char := adapter.latestConnection().apiChar

	type reply struct {
		frame packet.Frame
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		f, err := client.Request(context.Background(), packet.BatteryQuery())
		done <- reply{f, err}
	}()
	waitFor(t, func() bool { return len(char.Writes()) == 1 })
	char.SimulateNotification(batteryResponse)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Request() error = %v", r.err)
		}
		if !bytes.Equal(r.frame.Payload, []byte{0x57}) {
			t.Errorf("Request() payload = % x, want 57", r.frame.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Request() did not resolve")
	}
}

func TestClientRequestNotConnected(t *testing.T) {
	client := NewClient(newMockAdapter(), testAddress, quietOpts())
	if _, err := client.Request(context.Background(), packet.BatteryQuery()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Request() error = %v, want ErrNotConnected", err)
	}
}

func TestClientFatalFrameDropsConnection(t *testing.T) {
	adapter := newMockAdapter()
	client := mustConnect(t, adapter, quietOpts())
	first := adapter.latestConnection()

	first.apiChar.SimulateNotification([]byte{0x09, 0x01, 0x00, 0x00})

	waitFor(t, first.isDisconnected)
	waitFor(t, func() bool { return adapter.latestConnection() != first && client.Connected() })

	select {
	case err := <-client.Errors():
		if !errors.Is(err, packet.ErrInvalidFrame) {
			t.Errorf("reported error = %v, want ErrInvalidFrame", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fatal error not reported")
	}
}

func TestClientListenersSurviveReconnect(t *testing.T) {
	adapter := newMockAdapter()
	client := mustConnect(t, adapter, quietOpts())

	var mu sync.Mutex
	var heard int
	client.On(packet.EventBattery, func(engine.Event) error {
		mu.Lock()
		defer mu.Unlock()
		heard++
		return nil
	})

	first := adapter.latestConnection()
	first.SimulateDisconnect()
	waitFor(t, func() bool { return adapter.latestConnection() != first && client.Connected() })

	// The old engine is closed; late notifications on it are dropped.
	first.apiChar.SimulateNotification(batteryResponse)
	adapter.latestConnection().apiChar.SimulateNotification(batteryResponse)

	mu.Lock()
	defer mu.Unlock()
	if heard != 1 {
		t.Errorf("listener calls = %d, want 1", heard)
	}
}

func TestClientBatteryPolling(t *testing.T) {
	adapter := newMockAdapter()
	opts := quietOpts()
	opts.BatteryPoll = 5 * time.Millisecond
	mustConnect(t, adapter, opts)

	char := adapter.latestConnection().apiChar
	waitFor(t, func() bool { return len(char.Writes()) >= 2 })
	for _, w := range char.Writes() {
		if !bytes.Equal(w, []byte{0x01, 0x02, 0x00, 0x00}) {
			t.Errorf("poll write = % x, want battery query", w)
		}
	}
}

func TestClientSendAfterClose(t *testing.T) {
	client := NewClient(newMockAdapter(), testAddress, quietOpts())
	client.Close()
	if err := client.Send(packet.IdentifyQuery()); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}
