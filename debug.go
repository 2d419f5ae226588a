// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/targetdecoy"
)

var debugOut io.Writer = os.Stdout

// debugLogPoints prints the points of every global map whose score index
// is in the --debug range
func debugLogPoints(agg *inputmap.Map, par *params) {
	if par.debugRange == `` {
		return
	}
	for _, id := range agg.Advocates() {
		tdMap := agg.TargetDecoyMap(id)
		series := tdMap.Series()
		if series.Len() == 0 {
			continue
		}
		debugMin, debugMax, err := parseIntRange(par.debugRange, 0, series.Len()-1)
		if err != nil {
			fmt.Fprintf(debugOut, "%s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(debugOut, "Advocate:%s nMax:%d window:%d targetOnly:%d minFDR:%f\n",
			id, tdMap.NMax(), tdMap.WindowSize(), tdMap.NTargetOnly(), tdMap.MinFDR())
		for i := debugMin; i <= debugMax; i++ {
			fmt.Fprintf(debugOut, "%d score:%g targets:%.0f decoys:%.0f pep:%f fdr:%f confidence:%0.2f%%\n",
				i, series.Scores[i], series.NTarget[i], series.NDecoy[i],
				series.PEP[i], series.FDR[i], targetdecoy.Confidence(series.PEP[i]))
		}
	}
}
