package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/pkg/core/realtime"
)

// recordPlugin 记录收到的通知
type recordPlugin struct {
	name string
	mu   sync.Mutex
	got  []NotifyData
	err  error
}

func (r *recordPlugin) Name() string { return r.name }

func (r *recordPlugin) Init(params map[string]string) error { return nil }

func (r *recordPlugin) Execute(data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, data.(NotifyData))
	return r.err
}

func (r *recordPlugin) received() []NotifyData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NotifyData(nil), r.got...)
}

func TestNew(t *testing.T) {
	p, err := New("webhook", "")
	require.NoError(t, err)
	assert.Equal(t, "webhook", p.Name())

	p, err = New("email", "ops-mail")
	require.NoError(t, err)
	assert.Equal(t, "ops-mail", p.Name())

	_, err = New("sms", "x")
	assert.Error(t, err)
}

func TestFromEvent(t *testing.T) {
	event := realtime.NewSearchEvent(realtime.EventSearchFinished, "run-1", map[string]interface{}{
		"makespan": float64(9),
	}).WithMetadata("instance", "optsched")
	data := FromEvent(event)
	assert.Equal(t, realtime.EventSearchFinished, data.Event)
	assert.Equal(t, "run-1", data.RunID)
	assert.Equal(t, "optsched", data.Instance)
	assert.Equal(t, 9, data.Makespan)

	failed := FromEvent(realtime.NewSearchEvent(realtime.EventSearchFailed, "run-2", map[string]interface{}{
		"message": "boom",
	}))
	assert.Equal(t, "boom", failed.Error)

	// 非 map 负载只保留基础字段
	raw := FromEvent(realtime.NewSearchEvent(realtime.EventSearchStarted, "run-3", "text"))
	assert.Nil(t, raw.Data)
	assert.Equal(t, "run-3", raw.RunID)
}

func TestManager_RegisterAndBind(t *testing.T) {
	pm := NewPluginManager()
	a := &recordPlugin{name: "a"}
	require.NoError(t, pm.Register(a))
	assert.Error(t, pm.Register(a), "重复注册")
	assert.Error(t, pm.Register(nil))
	assert.Error(t, pm.Register(&recordPlugin{}))

	assert.Error(t, pm.Bind(PluginBinding{PluginName: "missing", Event: realtime.EventSearchFinished}))
	assert.Error(t, pm.Bind(PluginBinding{PluginName: "a"}))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "a", Event: realtime.EventSearchFinished}))

	require.NoError(t, pm.Register(&recordPlugin{name: "0"}))
	assert.Equal(t, []string{"0", "a"}, pm.ListPlugins())

	got, ok := pm.GetPlugin("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	require.NoError(t, pm.Unregister("a"))
	assert.Error(t, pm.Unregister("a"))
	require.NoError(t, pm.Trigger(context.Background(), NotifyData{Event: realtime.EventSearchFinished}))
	assert.Empty(t, a.received())
}

func TestManager_RegisterWithInitFailure(t *testing.T) {
	pm := NewPluginManager()
	err := pm.RegisterWithInit(NewWebhookPlugin("hook"), map[string]string{})
	assert.Error(t, err)
	_, ok := pm.GetPlugin("hook")
	assert.False(t, ok)
}

func TestManager_Trigger(t *testing.T) {
	pm := NewPluginManager()
	all := &recordPlugin{name: "all"}
	slow := &recordPlugin{name: "slow"}
	broken := &recordPlugin{name: "broken", err: errors.New("down")}
	require.NoError(t, pm.Register(all))
	require.NoError(t, pm.Register(slow))
	require.NoError(t, pm.Register(broken))

	require.NoError(t, pm.Bind(PluginBinding{PluginName: "all", Event: realtime.EventSearchFinished}))
	require.NoError(t, pm.Bind(PluginBinding{
		PluginName: "slow",
		Event:      realtime.EventSearchFinished,
		Condition:  func(d NotifyData) bool { return d.Makespan > 100 },
	}))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "broken", Event: realtime.EventSearchFailed}))

	require.NoError(t, pm.Trigger(context.Background(), NotifyData{Event: realtime.EventSearchFinished, Makespan: 9}))
	require.NoError(t, pm.Trigger(context.Background(), NotifyData{Event: realtime.EventSearchFinished, Makespan: 120}))
	assert.Len(t, all.received(), 2)
	require.Len(t, slow.received(), 1)
	assert.Equal(t, 120, slow.received()[0].Makespan)

	err := pm.Trigger(context.Background(), NotifyData{Event: realtime.EventSearchFailed})
	assert.ErrorContains(t, err, "down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pm.Trigger(ctx, NotifyData{Event: realtime.EventSearchFinished}), context.Canceled)
}

func TestManager_Attach(t *testing.T) {
	bus := realtime.NewEventBus(false, false)
	defer bus.Close()

	pm := NewPluginManager()
	rec := &recordPlugin{name: "rec"}
	require.NoError(t, pm.Register(rec))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "rec", Event: realtime.EventSearchFinished}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pm.Attach(ctx, bus))

	require.NoError(t, bus.Publish(realtime.NewSearchEvent(realtime.EventSearchStarted, "run-1", nil)))
	require.NoError(t, bus.Publish(realtime.NewSearchEvent(realtime.EventSearchFinished, "run-1",
		realtime.SearchFinishedPayload{Makespan: 9})))

	require.Eventually(t, func() bool { return len(rec.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	got := rec.received()[0]
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 9, got.Makespan)
}

func TestManager_AttachWithoutBindings(t *testing.T) {
	bus := realtime.NewEventBus(false, false)
	defer bus.Close()
	assert.NoError(t, NewPluginManager().Attach(context.Background(), bus))
}

func TestWebhookPlugin(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		body    NotifyData
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewWebhookPlugin("hook")
	assert.Error(t, p.Execute(NotifyData{}), "未初始化")
	assert.Error(t, p.Init(map[string]string{"url": srv.URL, "timeout": "soon"}))
	require.NoError(t, p.Init(map[string]string{"url": srv.URL, "timeout": "2s", "token": "secret"}))
	assert.Error(t, p.Execute("not notify data"))

	require.NoError(t, p.Execute(NotifyData{Event: realtime.EventSearchFinished, RunID: "run-1", Makespan: 9}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "search.finished", headers.Get("X-OptSched-Event"))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 9, body.Makespan)
}

func TestWebhookPlugin_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewWebhookPlugin("hook")
	require.NoError(t, p.Init(map[string]string{"url": srv.URL}))
	assert.ErrorContains(t, p.Execute(NotifyData{Event: realtime.EventSearchFailed}), "502")
}

func TestEmailPlugin_Init(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		wantErr bool
	}{
		{"缺少主机", map[string]string{"from": "a@x", "to": "b@x"}, true},
		{"端口非法", map[string]string{"smtp_host": "mail", "smtp_port": "abc", "from": "a@x", "to": "b@x"}, true},
		{"缺少发件人", map[string]string{"smtp_host": "mail", "to": "b@x"}, true},
		{"缺少收件人", map[string]string{"smtp_host": "mail", "from": "a@x"}, true},
		{"正常", map[string]string{"smtp_host": "mail", "smtp_port": "587", "from": "a@x", "to": "b@x, c@x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmailPlugin("").Init(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmailPlugin_Message(t *testing.T) {
	p := NewEmailPlugin("mail").(*EmailPlugin)
	assert.Error(t, p.Execute(NotifyData{}), "未初始化")
	require.NoError(t, p.Init(map[string]string{"smtp_host": "mail", "from": "a@x", "to": "b@x, c@x"}))
	assert.Equal(t, []string{"b@x", "c@x"}, p.to)

	finished := NotifyData{
		Event:    realtime.EventSearchFinished,
		RunID:    "run-1",
		Instance: "optsched",
		Makespan: 9,
		Data:     map[string]interface{}{"expanded": 42, "duration_ms": 3},
	}
	assert.Equal(t, "[求解完成] run-1 - makespan=9", p.buildSubject(finished))
	assert.Equal(t, "[求解失败] run-2", p.buildSubject(NotifyData{Event: realtime.EventSearchFailed, RunID: "run-2"}))
	assert.Equal(t, "[系统通知] tier.dispatched", p.buildSubject(NotifyData{Event: realtime.EventTierDispatched}))

	body := p.buildBody(finished)
	assert.Contains(t, body, "Makespan: 9")
	assert.Contains(t, body, "实例: optsched")
	// 详细信息按键排序
	assert.Less(t, strings.Index(body, "duration_ms"), strings.Index(body, "expanded"))

	msg := p.buildMessage("subj", body)
	assert.True(t, strings.HasPrefix(msg, "From: a@x\r\n"))
	assert.Contains(t, msg, "To: b@x, c@x\r\n")
	assert.Contains(t, msg, "Subject: subj\r\n")
}
