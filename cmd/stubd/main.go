// stubd CLI - HTTP service virtualization server
package main

import "github.com/getmockd/stubd/pkg/cli"

func main() {
	cli.Execute()
}
