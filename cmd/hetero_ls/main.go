// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// hetero_ls lists the platforms and devices available to the runtime, as configured by HETERO_BACKENDS,
// and optionally runs a small benchmark on each of them.
//
// Usage:
//
//	hetero_ls [-type=gpu] [-aspects] [-bench] [-bench_size=1M] [-bench_iters=100]
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/hetero/backends"
	_ "github.com/gomlx/hetero/backends/default"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagType      = flag.String("type", "all", "Device types to list: cpu, gpu, accelerator, custom, host or all.")
	flagAspects   = flag.Bool("aspects", false, "Lists the aspects of each device.")
	flagBench     = flag.Bool("bench", false, "Runs a small saxpy benchmark on each listed device.")
	flagBenchSize = flag.String("bench_size", "1M",
		"Number of float32 elements of the benchmark buffers. Accepts suffixes like \"64K\" or \"1M\".")
	flagBenchIters = flag.Int("bench_iters", 100, "Number of kernel launches of the benchmark, per device.")
	flagColor      = flag.String("color", "auto", "Color output: auto, none, ansi, ansi256 or truecolor.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := setColorProfile(*flagColor); err != nil {
		klog.Errorf("%v. See 'hetero_ls -help'.", err)
		os.Exit(1)
	}
	filter, err := parseDeviceType(*flagType)
	if err != nil {
		klog.Errorf("%v. See 'hetero_ls -help'.", err)
		os.Exit(1)
	}

	reg := platform.Default()
	listPlatforms(reg)
	devices := reg.Devices(filter)
	listDevices(devices)
	listEnumerationErrors(reg)
	if *flagBench && len(devices) > 0 {
		benchmark(devices)
	}
	reg.Finalize()
	if len(devices) == 0 {
		os.Exit(1)
	}
}

func setColorProfile(name string) error {
	switch name {
	case "auto":
	case "none":
		lipgloss.SetColorProfile(termenv.Ascii)
	case "ansi":
		lipgloss.SetColorProfile(termenv.ANSI)
	case "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "truecolor":
		lipgloss.SetColorProfile(termenv.TrueColor)
	default:
		return errors.Errorf("unknown -color=%q", name)
	}
	return nil
}

func parseDeviceType(name string) (platform.DeviceType, error) {
	if name == "" || strings.ToLower(name) == "all" {
		return platform.AllDevices, nil
	}
	dt, err := backends.DeviceTypeString(name)
	if err != nil {
		return 0, errors.Wrapf(err, "unknown device -type=%q", name)
	}
	return dt, nil
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row == lgtable.HeaderRow:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func listPlatforms(reg *platform.Registry) {
	fmt.Println(titleStyle.Render("Platforms"))
	table := newTable().Headers("#", "Name", "Vendor", "Version", "Backend", "# devices")
	for ii, p := range reg.Platforms() {
		table.Row(fmt.Sprint(ii), p.Name(), p.Vendor(), p.Version(), p.Backend().Name(),
			fmt.Sprint(len(p.Devices(platform.AllDevices))))
	}
	fmt.Println(table.Render())
}

func listDevices(devices []*platform.Device) {
	fmt.Println(titleStyle.Render("Devices"))
	headers := []string{"#", "Platform", "Name", "Type", "Memory", "Compute units", "Max work-group", "UUID"}
	if *flagAspects {
		headers = append(headers, "Aspects")
	}
	table := newTable().Headers(headers...)
	for ii, dev := range devices {
		row := []string{
			fmt.Sprint(ii), dev.Platform().Name(), dev.Name(), dev.Type().String(),
			humanize.IBytes(dev.GlobalMemory()), fmt.Sprint(dev.ComputeUnits()), fmt.Sprint(dev.MaxWorkGroupSize()),
			dev.UUID(),
		}
		if *flagAspects {
			row = append(row, strings.ReplaceAll(dev.Aspects().String(), "|", "\n"))
		}
		table.Row(row...)
	}
	fmt.Println(table.Render())
}

func listEnumerationErrors(reg *platform.Registry) {
	errs := reg.EnumerationErrors()
	if len(errs) == 0 {
		return
	}
	fmt.Println(titleStyle.Render("Unavailable backends"))
	for _, err := range errs {
		fmt.Println(errorStyle.Render("  " + err.Error()))
	}
}
