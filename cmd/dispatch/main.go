package main

import (
	"github.com/ilindan-dev/clinic-notifier/internal/app"
	"go.uber.org/fx"
)

// main runs one dispatch sweep and exits.
func main() {
	fx.New(app.DispatchModule).Run()
}
