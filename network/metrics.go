// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"github.com/luxfi/metric"
)

type networkMetrics struct {
	framesIn  metric.Counter
	framesOut metric.Counter
}

func newMetrics(registerer metric.Registerer) (*networkMetrics, error) {
	m := &networkMetrics{
		framesIn: metric.NewCounter(metric.CounterOpts{
			Name: "network_frames_in",
			Help: "Number of frames received from peers",
		}),
		framesOut: metric.NewCounter(metric.CounterOpts{
			Name: "network_frames_out",
			Help: "Number of frames flooded to peers",
		}),
	}
	if err := registerer.Register(metric.AsCollector(m.framesIn)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.framesOut)); err != nil {
		return nil, err
	}
	return m, nil
}
