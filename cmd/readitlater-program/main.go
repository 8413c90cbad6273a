// Command readitlater-program is the Pulumi program run by the Pulumi CLI
// for Pulumi.yaml. Settings come from the stack configuration; see
// stack.Run.
package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/readitlater/infrastructure/stack"
)

func main() {
	pulumi.Run(stack.Run)
}
