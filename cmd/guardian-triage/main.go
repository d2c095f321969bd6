// guardian-triage is the fleet-facing crash triage engine.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/guardian-iov/guardian/cmd/guardian-triage/app"
)

func main() {
	app.NewApp("guardian-triage").Run()
}
