package main

import (
	"context"
	"log/slog"
	"os"

	"omakase-monitor/cmd/omakase-monitor/commands"
	"omakase-monitor/lib/serviceutil"
	"omakase-monitor/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)

	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "omakase-monitor")
	if err != nil {
		if !os.IsNotExist(err) {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		slog.Info("no telemetry.json5 found, telemetry disabled")
	} else {
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}

	commands.ExecuteContext(ctx)
}
