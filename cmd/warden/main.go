package main

import (
	"github.com/stackwatch/warden/internal/cli"
	"github.com/stackwatch/warden/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
