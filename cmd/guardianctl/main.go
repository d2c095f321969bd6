// guardianctl is the operator CLI for the triage engine.
package main

import "github.com/guardian-iov/guardian/cmd/guardianctl/cmd"

func main() {
	cmd.Execute()
}
