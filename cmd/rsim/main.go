// Command rsim runs the example networks and inspects their trace files.
package main

import (
	"github.com/sarchlab/rsim/cmd/rsim/cmd"
)

func main() {
	cmd.Execute()
}
