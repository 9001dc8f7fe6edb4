package main

import "github.com/BaSui01/vstream/vstream"

// observerSet 把驱动事件扇出到多个观察者（Prometheus 与 OTel）
type observerSet []vstream.Observer

func (s observerSet) BlockTransferred(channel string, dir vstream.Direction) {
	for _, o := range s {
		o.BlockTransferred(channel, dir)
	}
}

func (s observerSet) Xrun(channel string, dir vstream.Direction) {
	for _, o := range s {
		o.Xrun(channel, dir)
	}
}

func (s observerSet) EndOfStream(channel string) {
	for _, o := range s {
		o.EndOfStream(channel)
	}
}

func (s observerSet) StartFailed(channel string) {
	for _, o := range s {
		o.StartFailed(channel)
	}
}

func (s observerSet) ActiveChanged(channel string, active bool) {
	for _, o := range s {
		o.ActiveChanged(channel, active)
	}
}

func (s observerSet) BlocksOwned(channel string, owned int) {
	for _, o := range s {
		o.BlocksOwned(channel, owned)
	}
}
