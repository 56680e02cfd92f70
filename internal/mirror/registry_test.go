package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

const testBaseline = "https://r.jina.ai/http://x.com"

// newTestRegistry はhttptestサーバーに接続可能なRegistryを生成する。
func newTestRegistry(mirrorURLs []string, interval time.Duration, ceiling time.Duration) *Registry {
	return NewRegistry(Options{
		BaselineURL: testBaseline,
		MirrorURLs:  mirrorURLs,
		Client:      &http.Client{Timeout: 5 * time.Second},
		ProbeHandle: "elonmusk",
		Interval:    interval,
		Ceiling:     ceiling,
		UserAgent:   "test-agent",
	})
}

func TestGetHealthyEndpoints_BaselineAlwaysFirst(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reg := newTestRegistry([]string{ts.URL}, time.Minute, time.Second)
	endpoints := reg.GetHealthyEndpoints(context.Background())

	if len(endpoints) != 1 {
		t.Fatalf("エンドポイント数 = %d, want 1 (全ミラー失敗でもベースラインは残るべき)", len(endpoints))
	}
	if !endpoints[0].IsBaseline() {
		t.Errorf("先頭エンドポイントはベースラインであるべき: %+v", endpoints[0])
	}
	if endpoints[0].BaseURL != testBaseline {
		t.Errorf("BaseURL = %q, want %q", endpoints[0].BaseURL, testBaseline)
	}
}

func TestGetHealthyEndpoints_UsableMirrorIncluded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/elonmusk" {
			t.Errorf("疎通確認パス = %q, want /elonmusk", r.URL.Path)
		}
		w.Write([]byte(`<rss version="2.0"><channel></channel></rss>`))
	}))
	defer ts.Close()

	reg := newTestRegistry([]string{ts.URL}, time.Minute, time.Second)
	endpoints := reg.GetHealthyEndpoints(context.Background())

	if len(endpoints) != 2 {
		t.Fatalf("エンドポイント数 = %d, want 2", len(endpoints))
	}
	if endpoints[1].BaseURL != ts.URL {
		t.Errorf("endpoints[1].BaseURL = %q, want %q", endpoints[1].BaseURL, ts.URL)
	}
	if endpoints[1].Mode != model.ModeDirectMirror {
		t.Errorf("endpoints[1].Mode = %q, want direct-mirror", endpoints[1].Mode)
	}
}

func TestGetHealthyEndpoints_DegradedMirrorStillUsable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("Just a moment..."))
	}))
	defer ts.Close()

	reg := newTestRegistry([]string{ts.URL}, time.Minute, time.Second)
	endpoints := reg.GetHealthyEndpoints(context.Background())

	if len(endpoints) != 2 {
		t.Fatalf("チャレンジ応答のミラーは利用可能として扱われるべき: エンドポイント数 = %d, want 2", len(endpoints))
	}
	if state := reg.States()[ts.URL]; state != model.StateDegraded {
		t.Errorf("state = %q, want degraded", state)
	}
}

func TestGetHealthyEndpoints_ResultsCached(t *testing.T) {
	var probes atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.Write([]byte(`<?xml version="1.0"?><rss></rss>`))
	}))
	defer ts.Close()

	reg := newTestRegistry([]string{ts.URL}, time.Minute, time.Second)

	reg.GetHealthyEndpoints(context.Background())
	reg.GetHealthyEndpoints(context.Background())

	if got := probes.Load(); got != 1 {
		t.Errorf("疎通確認回数 = %d, want 1 (interval内の再取得はキャッシュを使うべき)", got)
	}
}

func TestGetHealthyEndpoints_SlowProbeExcludedByCeiling(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Write([]byte(`<rss></rss>`))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<rss></rss>`))
	}))
	defer fast.Close()

	reg := newTestRegistry([]string{slow.URL, fast.URL}, time.Minute, 300*time.Millisecond)
	endpoints := reg.GetHealthyEndpoints(context.Background())

	if len(endpoints) != 2 {
		t.Fatalf("エンドポイント数 = %d, want 2 (未応答ミラーは除外、高速ミラーは含まれるべき)", len(endpoints))
	}
	if endpoints[1].BaseURL != fast.URL {
		t.Errorf("endpoints[1].BaseURL = %q, want %q", endpoints[1].BaseURL, fast.URL)
	}
}

type fakeProbeRecorder struct {
	states map[string]string
}

func (f *fakeProbeRecorder) RecordProbeState(baseURL string, state string) {
	f.states[baseURL] = state
}

func TestGetHealthyEndpoints_ProbeStatesRecorded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<rss></rss>`))
	}))
	defer ts.Close()

	recorder := &fakeProbeRecorder{states: make(map[string]string)}
	reg := NewRegistry(Options{
		BaselineURL: testBaseline,
		MirrorURLs:  []string{ts.URL},
		Client:      &http.Client{Timeout: 5 * time.Second},
		ProbeHandle: "elonmusk",
		Interval:    time.Minute,
		Ceiling:     time.Second,
		UserAgent:   "test-agent",
		Recorder:    recorder,
	})

	reg.GetHealthyEndpoints(context.Background())

	if recorder.states[ts.URL] != "healthy" {
		t.Errorf("記録された状態 = %q, want healthy", recorder.states[ts.URL])
	}
}

func TestClassify(t *testing.T) {
	classifier := NewDefaultClassifier()

	cases := []struct {
		name   string
		status int
		body   string
		want   model.HealthState
	}{
		{"レート制限マーカー", 200, "Rate limit exceeded", model.StateRateLimited},
		{"403はチャレンジ通過可能とみなす", 403, "forbidden", model.StateDegraded},
		{"Cloudflareチャレンジ", 200, "Just a moment...", model.StateDegraded},
		{"Nitterのハードブロック", 200, "403 | Nitter", model.StateBlocked},
		{"アカウント不在", 200, "This account doesn't exist", model.StateBlocked},
		{"シンジケーションXML", 200, `<?xml version="1.0"?><rss></rss>`, model.StateHealthy},
		{"タイムラインHTML", 200, `<div class="timeline-item"></div>`, model.StateHealthy},
		{"リーダープロキシ出力", 200, "Title: Elon Musk\nMarkdown Content:\nhello", model.StateHealthy},
		{"認識不能な200応答", 200, "<html><body>hello</body></html>", model.StateBlocked},
		{"サーバーエラー", 500, "oops", model.StateBlocked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifier.Classify(tc.status, tc.body); got != tc.want {
				t.Errorf("Classify(%d, %q) = %q, want %q", tc.status, tc.body, got, tc.want)
			}
		})
	}
}
