package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"go.aimuz.me/voicechat/message"
)

func TestLocalPair_PreservesOrder(t *testing.T) {
	a, b := NewLocalPair(16)
	ctx := context.Background()

	go func() {
		for i := range 10 {
			_ = a.Publish(ctx, message.Envelope{Event: message.EventState, Sender: fmt.Sprint(i)})
		}
		_ = a.Close()
	}()

	i := 0
	for env := range b.Receive() {
		if env.Sender != fmt.Sprint(i) {
			t.Fatalf("envelope %d has sender %q", i, env.Sender)
		}
		i++
	}
	if i != 10 {
		t.Errorf("received %d envelopes, want 10", i)
	}
}

func TestLocal_PublishAfterClose(t *testing.T) {
	a, _ := NewLocalPair(1)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	err := a.Publish(context.Background(), message.Envelope{Event: message.EventGetState})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
}

func TestLocal_PublishDropsWhenFull(t *testing.T) {
	a, b := NewLocalPair(1)

	if err := a.Publish(context.Background(), message.Envelope{Event: message.EventGetState}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- a.Publish(context.Background(), message.Envelope{Event: message.EventState})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("Publish on full queue = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	if env := <-b.Receive(); env.Event != message.EventGetState {
		t.Errorf("received %q, want the queued GET_STATE", env.Event)
	}
}

func TestLocal_PublishCanceled(t *testing.T) {
	a, _ := NewLocalPair(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Publish(ctx, message.Envelope{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish with canceled context = %v, want context.Canceled", err)
	}
}

func TestDataChannel_HandleMessage(t *testing.T) {
	d := newDataChannel(nil, nil)

	d.handleMessage(webrtc.DataChannelMessage{IsString: true, Data: []byte(`{"event":"CONNECTED","payload":{}}`)})
	d.handleMessage(webrtc.DataChannelMessage{IsString: false, Data: []byte(`{"event":"CONNECTED"}`)})
	d.handleMessage(webrtc.DataChannelMessage{IsString: true, Data: []byte(`not json`)})

	select {
	case env := <-d.Receive():
		if env.Event != message.EventConnected {
			t.Errorf("event = %q, want CONNECTED", env.Event)
		}
	default:
		t.Fatal("expected one envelope")
	}
	select {
	case env := <-d.Receive():
		t.Fatalf("unexpected envelope %+v", env)
	default:
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-d.Receive(); ok {
		t.Error("Receive channel should be closed")
	}
	d.handleMessage(webrtc.DataChannelMessage{IsString: true, Data: []byte(`{"event":"CONNECTED"}`)})
	if err := d.Publish(context.Background(), message.Envelope{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
}

// echoSignaling answers offers and sends every envelope it receives back on
// the same data channel.
func echoSignaling(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offer, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answer, err := AnswerDataChannel(string(offer), WebRTCConfig{}, func(d *DataChannel) {
			go func() {
				defer d.Close()
				for env := range d.Receive() {
					_ = d.Publish(context.Background(), env)
				}
			}()
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, answer)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDataChannel_RoundTrip(t *testing.T) {
	srv := echoSignaling(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d, err := DialDataChannel(ctx, WebRTCConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("DialDataChannel: %v", err)
	}
	defer d.Close()

	want := message.Envelope{Event: message.EventCodeSnippet, Payload: []byte(`{"snippet":"x"}`), Sender: "a"}
	if err := d.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-d.Receive():
		if got.Event != want.Event || got.Sender != want.Sender || string(got.Payload) != string(want.Payload) {
			t.Errorf("echo = %+v, want %+v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for echo")
	}
}

func TestDialDataChannel_SignalingRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := DialDataChannel(ctx, WebRTCConfig{URL: srv.URL})
	if !errors.Is(err, ErrSignaling) {
		t.Fatalf("DialDataChannel = %v, want ErrSignaling", err)
	}
}
