package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/timerwheel/mlog"
)

// 节点全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var ErrStartTwice = errors.New("app mods cannot start twice")

// 单例
var defaultApp = NewApp()

type Module interface {
	OnInit() error // 初始化
	Destroy()      // 销毁
	Run()          // 启动
	Name() string  // 名字
}

// Reloader 收到 SIGHUP 时回调, 可选实现
type Reloader interface {
	OnReload()
}

// mod 模块
type mod struct {
	mi Module
}

// DefaultApp 默认单例
func DefaultApp() *App {
	return defaultApp
}

// App 中的 modules 在初始化(通过 Start 或 Run) 之后不能变更
// App API 只有 GetState 和 Stop 是 goroutine safe 的
type App struct {
	mods  []*mod
	state int32
	sig   chan os.Signal
	wg    *sync.WaitGroup
}

func NewApp() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

// SetState 设置状态
func (app *App) setState(s int32) {
	atomic.StoreInt32(&app.state, s)
}

// GetState 获取状态
func (app *App) GetState() int32 {
	return atomic.LoadInt32(&app.state)
}

// Start 初始化app, 某个模块初始化失败时已初始化的模块按逆序销毁
func (app *App) start(mods ...Module) error {
	// 单个app不能启动两次
	if app.GetState() != AppStateNone || len(app.mods) != 0 {
		return ErrStartTwice
	}
	if len(mods) == 0 {
		return nil
	}
	mlog.Info("app starting up")
	app.setState(AppStateInit)
	// 模块初始化
	for _, mi := range mods {
		if err := mi.OnInit(); err != nil {
			for i := len(app.mods) - 1; i >= 0; i-- {
				destroy(app.mods[i])
			}
			app.mods = nil
			app.setState(AppStateNone)
			return fmt.Errorf("module %v init error %w", reflect.TypeOf(mi), err)
		}
		app.mods = append(app.mods, &mod{mi: mi})
	}
	// 模块启动
	app.wg = &sync.WaitGroup{}
	for _, m := range app.mods {
		app.wg.Add(1)
		go run(m, app.wg)
	}
	app.setState(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) stop() {
	if app.GetState() == AppStateStop {
		return
	}
	mlog.Info("app stop begin")
	app.setState(AppStateStop)
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.mi.Name())
		destroy(m)
	}
	if app.wg != nil {
		app.wg.Wait()
	}
	app.mods = nil
	app.setState(AppStateNone)
	mlog.Info("app stoped")
}

func run(m *mod, wg *sync.WaitGroup) {
	defer wg.Done()
	m.mi.Run()
}

func destroy(m *mod) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", m.mi.Name(), r, debug.Stack())
		}
	}()

	m.mi.Destroy()
}

func reload(m *mod) {
	r, ok := m.mi.(Reloader)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module reload panic: %v\n%s", m.mi.Name(), r, debug.Stack())
		}
	}()
	r.OnReload()
}

// Run 阻塞到收到 SIGINT/SIGTERM 或 Stop, SIGHUP 只通知模块重载
func (app *App) Run(mods ...Module) error {
	if app.sig == nil {
		app.sig = make(chan os.Signal, 1)
	}
	if err := app.start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	for {
		sig := <-app.sig
		mlog.Infof("app got signal %v", sig)
		if sig != syscall.SIGHUP {
			break
		}
		for _, m := range app.mods {
			reload(m)
		}
	}

	app.stop()
	return nil
}

func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
