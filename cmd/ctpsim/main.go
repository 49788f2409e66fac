// ctpsim -- a Collection Tree Protocol simulator for wireless sensor
// network topologies.
package main

import "github.com/ctpnet/ctpsim/cmd/ctpsim/commands"

func main() {
	commands.Execute()
}
