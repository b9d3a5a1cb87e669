package main

import (
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
)

// window returns elements [from, to) of buf without copying.
func window(buf sample.Buffer, from, to int) sample.Buffer {
	switch v := buf.(type) {
	case sample.CS16:
		return v[2*from : 2*to]
	case sample.CF32:
		return v[2*from : 2*to]
	default:
		return buf
	}
}

// format returns the sample format named by a --format flag, falling back
// to the one configured for dir.
func (a *app) format(dir hal.Direction, name string) (sample.Format, error) {
	if name == "" {
		name = a.cfg.Stream(dir).Format
	}
	return sample.ParseFormat(name)
}

// setup opens a stream for dir with the configured tunables.
func (a *app) setup(dir hal.Direction, f sample.Format) (*stream.Handle, error) {
	return a.engine.SetupStream(dir, f.String(), nil, a.cfg.Stream(dir).Args())
}
