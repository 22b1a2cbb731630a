package main

import (
	"context"
	"log/slog"

	"notion-helper/cmd/notion-helper/commands"
	"notion-helper/lib/telemetry"
	"notion-helper/lib/util/serviceutil"
)

func main() {
	telemetry.InitSlog(false)

	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "notion-helper")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
