package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *TwilioGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewTwilioGateway(TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15559990000",
		BaseURL:    srv.URL,
	}, metrics.NewMessagingMetrics(prometheus.NewRegistry()), nil)
	g.backoff = func(int) time.Duration { return time.Millisecond }
	return g
}

func TestTwilioGateway_SendSMS(t *testing.T) {
	var form map[string]string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Fatalf("missing basic auth")
		}
		_ = r.ParseForm()
		form = map[string]string{"To": r.PostForm.Get("To"), "From": r.PostForm.Get("From"), "Body": r.PostForm.Get("Body")}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	if err := g.Send(context.Background(), "(555) 010-0001", "Hi there", leads.ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	if form["To"] != "+15550100001" || form["From"] != "+15559990000" || form["Body"] != "Hi there" {
		t.Fatalf("unexpected form %+v", form)
	}
}

func TestTwilioGateway_SendWhatsAppPrefixesAddresses(t *testing.T) {
	var to, from string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		to, from = r.PostForm.Get("To"), r.PostForm.Get("From")
		w.WriteHeader(http.StatusCreated)
	})
	if err := g.Send(context.Background(), "+15550100001", "Hi", leads.ChannelWhatsApp); err != nil {
		t.Fatalf("send: %v", err)
	}
	if to != "whatsapp:+15550100001" || from != "whatsapp:+15559990000" {
		t.Fatalf("unexpected addresses to=%q from=%q", to, from)
	}
}

func TestTwilioGateway_UnsupportedChannel(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected")
	})
	err := g.Send(context.Background(), "+15550100001", "Hi", leads.ChannelEmail)
	if !errors.Is(err, ErrUnsupportedChannel) || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected ErrUnsupportedChannel, got %v", err)
	}
}

func TestTwilioGateway_RetriesServerErrors(t *testing.T) {
	var calls int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	if err := g.Send(context.Background(), "+15550100001", "Hi", leads.ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestTwilioGateway_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	})
	err := g.Send(context.Background(), "+15550100001", "Hi", leads.ChannelSMS)
	if !errors.Is(err, ErrSendFailed) || apperr.KindOf(err) != apperr.KindUpstreamFailure {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestFormatTwilioError(t *testing.T) {
	if got := formatTwilioError(400, []byte(`{"code":21211,"message":"bad"}`)); got != "status 400 code 21211: bad" {
		t.Fatalf("unexpected %q", got)
	}
	if got := formatTwilioError(502, nil); got != "status 502" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestStubSenderRejectsUnsupportedChannel(t *testing.T) {
	s := NewStubSender(nil)
	if err := s.Send(context.Background(), "+15550001111", "hi", leads.ChannelSMS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.Send(context.Background(), "a@b.com", "hi", leads.ChannelEmail)
	if !errors.Is(err, ErrUnsupportedChannel) {
		t.Fatalf("expected ErrUnsupportedChannel, got %v", err)
	}
}
