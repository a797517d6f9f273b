package data_test

import (
	"fmt"
	"os"

	"github.com/phil-mansfield/impact/lib/data"
	"github.com/phil-mansfield/impact/lib/impactio"
	"github.com/phil-mansfield/impact/lib/stats"
)

// This example writes a small single-bunch run and reads the end-of-run
// energies and the start-of-run x emittance back out of it.
func Example() {
	dir, err := os.MkdirTemp("", "impact-example")
	if err != nil {
		panic(err.Error())
	}
	defer os.RemoveAll(dir)

	l := impactio.DefaultLayout(dir)
	run := &impactio.FakeRun{
		Steps: []impactio.BunchCountRecord{
			{Step: 1, Z: 0.0, BunchFlag: 1, Counts: []int32{3}},
			{Step: 2, Z: 0.5, BunchFlag: 1, Counts: []int32{2}},
		},
		Phase: map[impactio.PhaseKey][]impactio.PhaseSpaceParticle{
			{Bunch: 1, Location: impactio.StartLocation}: {
				{X: -1, Px: 1}, {X: 0, Px: 0}, {X: 1, Px: 1},
			},
			{Bunch: 1, Location: impactio.EndLocation}: {{X: 0}, {X: 1}},
		},
		End: map[int][]impactio.EndSliceParticle{
			1: {{W: 0.5}, {W: 0.75}},
		},
	}
	if err := run.Write(l); err != nil {
		panic(err.Error())
	}

	d, err := data.New(data.Config{Variant: data.RFQ, BunchCount: 1, Layout: l})
	if err != nil {
		panic(err.Error())
	}
	if err := d.Load(nil); err != nil {
		panic(err.Error())
	}

	end, err := d.EndTable(1)
	if err != nil {
		panic(err.Error())
	}
	start, err := d.PhaseTable(impactio.StartLocation, 1)
	if err != nil {
		panic(err.Error())
	}
	x := data.MustColumn(start, "x")
	px := data.MustColumn(start, "px")

	fmt.Println(d.SliceCount(), d.Locations())
	fmt.Println(data.MustColumn(end, "W"))
	fmt.Printf("%.3f\n", stats.RMSEmittance(x, px))

	// Output:
	// 2 [40 50]
	// [0.5 0.75]
	// 0.385
}
