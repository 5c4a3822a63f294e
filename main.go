package main

import (
	"context"
	"flag"
	"log"
	"sync"

	"github.com/fixkme/timerwheel/clock"
	"github.com/fixkme/timerwheel/framework/app"
	"github.com/fixkme/timerwheel/framework/config"
	"github.com/fixkme/timerwheel/framework/core"
	g "github.com/fixkme/timerwheel/framework/go"
	"github.com/fixkme/timerwheel/mlog"
	"github.com/fixkme/timerwheel/timer"
)

// agentModule 业务协程, 消费 promise 动作投递的到期通知
type agentModule struct {
	*g.RoutineAgent
}

func (m *agentModule) OnInit() error {
	m.Init(func(tid, now, data int64) {
		mlog.Debugf("promise timer %d expired at %d, data %d", tid, now, data)
	}, nil)
	return nil
}

func (m *agentModule) Destroy() {
	m.Close()
	<-m.Done()
}

func (m *agentModule) Name() string {
	return "agent"
}

func main() {
	confFile := flag.String("config", "", "config file, .yaml/.yml or .json")
	flag.Parse()

	if err := config.LoadConfig(*confFile, config.LoadConfigFromEnv); err != nil {
		log.Fatalf("load config %s: %v", *confFile, err)
	}
	conf := config.Config

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()
	err := mlog.UseDefaultLogger(ctx, wg, conf.LogPath, conf.LogName, mlog.ParseLevel(conf.LogLevel), conf.LogStdOut || conf.IsDebug, mlog.FileOptions{
		MaxSizeMB:  conf.LogMaxSizeMB,
		MaxBackups: conf.LogMaxBackups,
		MaxAgeDays: conf.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	mlog.Infof("config %s", conf.JsonFormat())

	if err = core.InitStorage(ctx, conf); err != nil {
		mlog.Errorf("init storage: %v", err)
		return
	}
	defer core.StopStorage(context.Background())

	agent := &agentModule{g.NewRoutineAgent(conf.TaskQueueSize, conf.TaskQueueSize)}
	promise := clock.NewChanAction(agent.TimerReceiver(), nil)
	actions := timer.NewActions()
	if err = actions.Register("promise", promise); err != nil {
		mlog.Errorf("register action: %v", err)
		return
	}
	if err = actions.RegisterFunc("log", func(timerID, userData int64) {
		mlog.Infof("timer %d expired, data %d", timerID, userData)
	}); err != nil {
		mlog.Errorf("register action: %v", err)
		return
	}
	wheel := core.NewWheelModule("wheel", conf, actions)

	if *confFile != "" {
		go func() {
			err := config.Watch(ctx, *confFile, func(c *config.AppConfig) {
				level := mlog.ParseLevel(c.LogLevel)
				if mlog.SetLevel(level) {
					mlog.Infof("log level -> %s", level)
				}
			})
			if err != nil {
				mlog.Warnf("config watch %s: %v", *confFile, err)
			}
		}()
	}

	if err = app.DefaultApp().Run(agent, wheel); err != nil {
		mlog.Errorf("app run: %v", err)
		return
	}
	if n := promise.Dropped(); n > 0 {
		mlog.Warnf("%d promises dropped", n)
	}
}
