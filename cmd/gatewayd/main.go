// Command gatewayd keeps connections open to a set of device servers and
// polls them with HTTP requests.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gatewayd"
	app.HelpName = "gatewayd"
	app.Usage = "IoT gateway connection daemon"
	app.UsageText = "gatewayd [global options] <command> [arguments...]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error; overrides the config file",
		},
		cli.BoolFlag{
			Name:  "dev",
			Usage: "human readable development logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "poll the endpoints of a config file",
			Action: run,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Value: "gatewayd.yaml",
					Usage: "config file",
				},
			},
		},
		{
			Name:      "probe",
			Usage:     "send one request and print the parser events",
			ArgsUsage: "<host>",
			Action:    probe,
			Flags:     probeFlags,
		},
	}
	return app
}
