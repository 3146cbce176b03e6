package main

import (
	"github.com/syncpulse-dev/notify-worker/internal/app"
	"go.uber.org/fx"
)

// main is the entry point for the background delivery worker.
func main() {
	fx.New(app.WorkerModule).Run()
}
