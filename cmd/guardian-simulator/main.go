// guardian-simulator emits synthetic fleet telemetry.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/guardian-iov/guardian/cmd/guardian-simulator/app"
)

func main() {
	app.NewApp("guardian-simulator").Run()
}
