package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/storage"
)

type stubInvoker struct {
	handle Handle
	err    error
	calls  int
}

func (s *stubInvoker) InvokeAsync(ctx context.Context, payloadKey string) (Handle, error) {
	s.calls++
	return s.handle, s.err
}

func testClient(store storage.ObjectStore, inv Invoker, maxWait time.Duration) *Client {
	return NewClient(store, inv, time.Millisecond, maxWait, infra.NewLogger("test", "inference"))
}

func successBody(t *testing.T, img []byte) []byte {
	t.Helper()
	body, err := json.Marshal(map[string][]string{
		"generated_images": {base64.StdEncoding.EncodeToString(img)},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestAwaitResultReturnsFirstImage(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	c := testClient(store, &stubInvoker{handle: h}, time.Second)

	img := []byte("jpeg-bytes")
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = store.Put(context.Background(), h.SuccessKey, successBody(t, img), "application/json")
	}()

	got, err := c.AwaitResult(context.Background(), h)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if string(got) != string(img) {
		t.Fatalf("got %q, want %q", got, img)
	}
}

// flakyStore fails the first n Get calls with a transport-style error.
type flakyStore struct {
	storage.ObjectStore
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("storage: connection reset by peer")
	}
	return f.ObjectStore.Get(ctx, key)
}

func TestAwaitResultRetriesTransientStorageErrors(t *testing.T) {
	t.Parallel()

	mem := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	img := []byte("jpeg-bytes")
	if err := mem.Put(context.Background(), h.SuccessKey, successBody(t, img), "application/json"); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	store := &flakyStore{ObjectStore: mem, failures: 3}
	c := testClient(store, &stubInvoker{handle: h}, time.Second)

	got, err := c.AwaitResult(context.Background(), h)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if string(got) != string(img) {
		t.Fatalf("got %q, want %q", got, img)
	}
	if store.calls <= store.failures {
		t.Fatalf("store calls = %d, want retries past %d failures", store.calls, store.failures)
	}
}

func TestAwaitResultTimesOutWhenStorageStaysUnreachable(t *testing.T) {
	t.Parallel()

	store := &flakyStore{ObjectStore: storage.NewMemoryStore(), failures: 1 << 30}
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	c := testClient(store, &stubInvoker{handle: h}, 10*time.Millisecond)

	if _, err := c.AwaitResult(context.Background(), h); !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want domain.ErrTimeout", err)
	}
}

func TestAwaitResultFailureMarkerIsTerminal(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	if err := store.Put(context.Background(), h.FailureKey, []byte(`{"error":"oom"}`), "application/json"); err != nil {
		t.Fatalf("seed failure marker: %v", err)
	}

	c := testClient(store, &stubInvoker{handle: h}, time.Second)
	if _, err := c.AwaitResult(context.Background(), h); !errors.Is(err, domain.ErrInferenceFailed) {
		t.Fatalf("err = %v, want domain.ErrInferenceFailed", err)
	}
}

func TestAwaitResultTimesOut(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	c := testClient(store, &stubInvoker{handle: h}, 10*time.Millisecond)

	if _, err := c.AwaitResult(context.Background(), h); !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want domain.ErrTimeout", err)
	}
}

func TestAwaitResultHonorsContextCancel(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	c := testClient(store, &stubInvoker{handle: h}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.AwaitResult(ctx, h); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAwaitResultRejectsEmptyResult(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	h := Handle{SuccessKey: "output/run/result.json", FailureKey: "output/run/failure.json"}
	if err := store.Put(context.Background(), h.SuccessKey, []byte(`{"generated_images":[]}`), "application/json"); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	c := testClient(store, &stubInvoker{handle: h}, time.Second)
	if _, err := c.AwaitResult(context.Background(), h); !errors.Is(err, domain.ErrInferenceFailed) {
		t.Fatalf("err = %v, want domain.ErrInferenceFailed", err)
	}
}

func TestSubmitWrapsInvokerError(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	inv := &stubInvoker{err: fmt.Errorf("endpoint down")}
	c := testClient(store, inv, time.Second)

	if _, err := c.Submit(context.Background(), "input/payload.json"); err == nil {
		t.Fatal("expected error from failing invoker")
	}
	if inv.calls != 1 {
		t.Fatalf("invoker calls = %d, want 1", inv.calls)
	}
}

func TestAsyncEndpointInvoke(t *testing.T) {
	t.Parallel()

	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_ = json.NewEncoder(w).Encode(invokeResponse{
			OutputLocation:  "output/run-1/result.json",
			FailureLocation: "output/run-1/failure.json",
		})
	}))
	defer srv.Close()

	e := NewAsyncEndpoint(srv.URL, "secret", time.Second)
	h, err := e.InvokeAsync(context.Background(), "input/run-1/payload.json")
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if h.SuccessKey != "output/run-1/result.json" || h.FailureKey != "output/run-1/failure.json" {
		t.Fatalf("unexpected handle: %+v", h)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody != `{"input_location":"input/run-1/payload.json"}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestAsyncEndpointDerivesKeysWhenResponseOmitsThem(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e := NewAsyncEndpoint(srv.URL, "", time.Second)
	h, err := e.InvokeAsync(context.Background(), "input/run-2/payload.json")
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if h.SuccessKey != "input/run-2/result.json" || h.FailureKey != "input/run-2/failure.json" {
		t.Fatalf("unexpected derived handle: %+v", h)
	}
}

func TestAsyncEndpointRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewAsyncEndpoint(srv.URL, "", time.Second)
	if _, err := e.InvokeAsync(context.Background(), "input/run-3/payload.json"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
