package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// plainBuilder はhttptestサーバーに接続可能な素のクライアントを返す。
type plainBuilder struct{}

func (plainBuilder) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// nilBuilder はクライアント生成に失敗するビルダー。
type nilBuilder struct{}

func (nilBuilder) NewSafeClient(timeout time.Duration) *http.Client {
	return nil
}

func newStartedPool(t *testing.T, size int) *Pool {
	t.Helper()
	pool := NewPool(size, plainBuilder{}, 5*time.Second, 1024*1024, "test-agent")
	if err := pool.Start(); err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}
	return pool
}

func TestStart_InvalidSize(t *testing.T) {
	pool := NewPool(0, plainBuilder{}, time.Second, 1024, "test-agent")

	err := pool.Start()
	if err == nil {
		t.Fatal("サイズ0のプールは初期化エラーになるべき")
	}
	if !model.IsCode(err, model.ErrCodeRendererInit) {
		t.Errorf("エラーコード = %v, want RENDERER_INIT", err)
	}
	if pool.Ready() {
		t.Error("初期化失敗後は Ready() = false であるべき")
	}
}

func TestStart_ClientBuildFailure(t *testing.T) {
	pool := NewPool(2, nilBuilder{}, time.Second, 1024, "test-agent")

	if err := pool.Start(); !model.IsCode(err, model.ErrCodeRendererInit) {
		t.Errorf("クライアント生成失敗はRENDERER_INITエラーになるべき: %v", err)
	}
}

func TestSession_IndexWrapsAroundPoolSize(t *testing.T) {
	pool := newStartedPool(t, 2)

	if pool.Session(0) != pool.Session(2) {
		t.Error("Session(0) と Session(2) は同一スロットであるべき")
	}
	if pool.Session(0) == pool.Session(1) {
		t.Error("Session(0) と Session(1) は異なるスロットであるべき")
	}
}

func TestFetch_SetsUserAgentAndReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", ua)
		}
		w.Write([]byte("hello posts"))
	}))
	defer ts.Close()

	pool := newStartedPool(t, 1)
	body, err := pool.Session(0).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if body != "hello posts" {
		t.Errorf("body = %q, want hello posts", body)
	}
}

func TestFetch_BodyCapped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer ts.Close()

	pool := NewPool(1, plainBuilder{}, 5*time.Second, 100, "test-agent")
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}

	body, err := pool.Session(0).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("body長 = %d, want 100 (上限で打ち切られるべき)", len(body))
	}
}

func TestFetch_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer ts.Close()

	pool := newStartedPool(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := pool.Session(0).Fetch(ctx, ts.URL); err == nil {
		t.Error("コンテキスト期限切れでエラーになるべき")
	}
}

func TestRestart_RebuildsSessions(t *testing.T) {
	pool := newStartedPool(t, 2)
	before := pool.Session(0)

	if err := pool.Restart(); err != nil {
		t.Fatalf("Restart がエラーを返した: %v", err)
	}
	if !pool.Ready() {
		t.Error("Restart 後は Ready() = true であるべき")
	}
	if pool.Session(0) == before {
		t.Error("Restart 後のセッションは再生成されているべき")
	}
}
