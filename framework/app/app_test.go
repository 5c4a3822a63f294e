package app

import (
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeModule struct {
	name    string
	initErr error
	rec     *recorder
	done    chan struct{}
}

func newFake(name string, rec *recorder, initErr error) *fakeModule {
	return &fakeModule{name: name, initErr: initErr, rec: rec, done: make(chan struct{})}
}

func (f *fakeModule) record(ev string) {
	f.rec.add(f.name + ":" + ev)
}

func (f *fakeModule) OnInit() error {
	f.record("init")
	return f.initErr
}

func (f *fakeModule) Run() {
	<-f.done
}

func (f *fakeModule) Destroy() {
	f.record("destroy")
	close(f.done)
}

func (f *fakeModule) OnReload() {
	f.record("reload")
}

func (f *fakeModule) Name() string {
	return f.name
}

func TestAppLifecycle(t *testing.T) {
	rec := &recorder{}
	a, b := newFake("a", rec, nil), newFake("b", rec, nil)

	app := NewApp()
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(a, b) }()
	require.Eventually(t, func() bool { return app.GetState() == AppStateRun }, time.Second, time.Millisecond)

	app.sig <- syscall.SIGHUP
	require.Eventually(t, func() bool { return len(rec.get()) == 4 }, time.Second, time.Millisecond)
	app.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"a:init", "b:init", "a:reload", "b:reload", "b:destroy", "a:destroy"}, rec.get())
	assert.Equal(t, int32(AppStateNone), app.GetState())
}

func TestAppInitFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	a, b := newFake("a", rec, nil), newFake("b", rec, boom)

	app := NewApp()
	err := app.Run(a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"a:init", "b:init", "a:destroy"}, rec.get())
	assert.Equal(t, int32(AppStateNone), app.GetState())
}
