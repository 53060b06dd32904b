// Command appfunctions is a reference binary built on the SDK: it wires a
// trigger, the default pipeline plus one topic-bound "events" pipeline, and
// the store-and-forward engine, then runs until a termination signal
// arrives. A real application built
// on this SDK replaces the sample pipelines below with its own transforms.
package main

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/service"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/pkg/transforms"
)

func main() {
	svc, err := service.New()
	if err != nil {
		slog.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}

	svc.SetDefaultFunctionsPipeline(
		transforms.ToJSON,
		transforms.SetResponseData,
	)

	if err := svc.AddFunctionPipeline("events", []string{"events/#"}, pipeline.EventTarget(),
		transforms.NewValueFilter("profilename", "default-profile"),
		transforms.ToJSON,
		transforms.SetResponseData,
	); err != nil {
		svc.Logger.Error("failed to register events pipeline", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		svc.Logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}
