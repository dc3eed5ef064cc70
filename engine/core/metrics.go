package core

import (
	"time"

	"github.com/spaghettifunk/fromscratch/engine/containers"
)

const AVG_COUNT = 30

// Metrics keeps a moving average of frame times and a frames-per-second counter.
type Metrics struct {
	frameTimes         *containers.RingQueue[float64]
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

func (m *Metrics) Update(frameElapsed time.Duration) {
	// Calculate frame ms average
	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	if m.frameTimes.IsFull() {
		_, _ = m.frameTimes.Dequeue()
	}
	_ = m.frameTimes.Enqueue(frameMS)

	var sum float64
	m.frameTimes.Each(func(ms float64) { sum += ms })
	m.MSavg = sum / float64(m.frameTimes.Len())

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
