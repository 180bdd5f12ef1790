package voiceclone

import "time"

// StatusEvent 训练状态变更
type StatusEvent struct {
	ID       string        `json:"id"`
	UserID   int64         `json:"userId"`
	Attempt  string        `json:"-"`
	From     int           `json:"from"`
	To       int           `json:"to"`
	VoiceID  string        `json:"voiceId,omitempty"`
	Error    string        `json:"trainError,omitempty"`
	Duration time.Duration `json:"-"` // 仅训练结束事件有值
	At       time.Time     `json:"at"`
}

// Notifier 在记录锁内被同步调用，实现不能阻塞
type Notifier interface {
	OnStatusChange(ev StatusEvent)
}

type NotifierFunc func(ev StatusEvent)

func (f NotifierFunc) OnStatusChange(ev StatusEvent) { f(ev) }

// Notifiers 依次通知多个监听者
type Notifiers []Notifier

func (ns Notifiers) OnStatusChange(ev StatusEvent) {
	for _, n := range ns {
		n.OnStatusChange(ev)
	}
}

type nopNotifier struct{}

func (nopNotifier) OnStatusChange(StatusEvent) {}
