// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/core/compute"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
)

// saxpyKernel computes y = a*x + y, for x = args[0], y = args[1] and a = args[2].
var saxpyKernel = backends.RegisterKernel("hetero_ls.saxpy", backends.ItemKernel(
	func(item backends.Item, args backends.Args) {
		x := backends.ViewOf[float32](args, 0)
		y := backends.ViewOf[float32](args, 1)
		y.Set(item.ID, backends.ValueOf[float32](args, 2)*x.At(item.ID)+y.At(item.ID))
	}))

type benchResult struct {
	device           *platform.Device
	wall, kernelTime time.Duration
	err              error
}

// benchmark runs -bench_iters saxpy launches on each device, and prints the timings.
func benchmark(devices []*platform.Device) {
	size := int(must.M1(humanize.ParseBytes(*flagBenchSize)))
	numIters := *flagBenchIters
	fmt.Println(titleStyle.Render(fmt.Sprintf("Benchmark: saxpy over %s float32, %d launches", humanize.Comma(int64(size)), numIters)))
	bar := progressbar.NewOptions(len(devices)*numIters,
		progressbar.OptionSetDescription("    "),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("launches"),
		progressbar.OptionClearOnFinish(),
	)
	results := make([]benchResult, 0, len(devices))
	for _, dev := range devices {
		res := benchmarkDevice(dev, size, numIters, bar)
		results = append(results, res)
	}
	_ = bar.Finish()

	table := newTable().Headers("Device", "Wall time", "Kernel time / launch", "Throughput")
	for _, res := range results {
		if res.err != nil {
			table.Row(res.device.Name(), errorStyle.Render(res.err.Error()), "", "")
			continue
		}
		perLaunch := res.kernelTime / time.Duration(numIters)
		// 2 loads and 1 store of float32 per element.
		bytesPerSec := float64(12*size*numIters) / res.wall.Seconds()
		table.Row(res.device.Name(), res.wall.Round(time.Microsecond).String(),
			perLaunch.Round(time.Microsecond).String(), humanize.IBytes(uint64(bytesPerSec))+"/s")
	}
	fmt.Println(table.Render())
}

func benchmarkDevice(dev *platform.Device, size, numIters int, bar *progressbar.ProgressBar) (res benchResult) {
	res.device = dev
	ctx := must.M1(compute.NewContextForDevice(dev))
	q := must.M1(compute.NewQueue(ctx, dev, compute.WithProfiling()))
	xData := make([]float32, size)
	for ii := range xData {
		xData[ii] = 1
	}
	x := must.M1(compute.NewBufferFrom(ctx, xData, ranges.R(size)))
	y := must.M1(compute.NewBuffer(ctx, x.DType(), ranges.R(size)))
	defer func() {
		must.M(x.Close())
		must.M(y.Close())
	}()

	start := time.Now()
	events := make([]*compute.Event, 0, numIters)
	for range numIters {
		ev, err := q.Submit(func(h *compute.Handler) error {
			xAcc, err := h.Accessor(x, compute.Read)
			if err != nil {
				return err
			}
			yAcc, err := h.Accessor(y, compute.ReadWrite)
			if err != nil {
				return err
			}
			return h.ParallelFor(ranges.R(size), saxpyKernel, xAcc, yAcc, compute.Value(float32(0.5)))
		})
		if err != nil {
			res.err = err
			return
		}
		events = append(events, ev)
	}
	for _, ev := range events {
		if err := ev.Wait(); err != nil {
			res.err = err
			return
		}
		evStart := must.M1(ev.ProfilingStart())
		evEnd := must.M1(ev.ProfilingEnd())
		res.kernelTime += time.Duration(evEnd - evStart)
		_ = bar.Add(1)
	}
	res.wall = time.Since(start)
	return
}
