package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"aroundtheclock/app"
	"aroundtheclock/config"
	"aroundtheclock/domain/blocker"
	"aroundtheclock/domain/history"
	"aroundtheclock/domain/schedule"

	"github.com/urfave/cli"
)

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "required: config path",
	EnvVar: "ATC_CONFIG",
}

func main() {
	a := cli.NewApp()
	a.Name = "aroundtheclock"
	a.Usage = "scheduled, bounded internet blocking on the local subnet"
	a.Commands = []cli.Command{
		{
			Name:   "daemon",
			Usage:  "run the block scheduler as a long-lived service",
			Flags:  []cli.Flag{configFlag},
			Action: runDaemon,
		},
		{
			Name:      "block",
			Usage:     "run one bounded suppression window immediately",
			ArgsUsage: "<INTERFACE> <GATEWAY> <TIMEOUT_SECONDS>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "auto", Usage: "discover interface and gateway from the routing table"},
				cli.BoolFlag{Name: "sudo", Usage: "run the suppression tool through sudo"},
			},
			Action: runBlock,
		},
		{
			Name:   "times",
			Usage:  "print the day's schedule and recent block sessions",
			Flags:  []cli.Flag{configFlag},
			Action: runTimes,
		},
	}
	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(c *cli.Context) error {
	if err := loadConfig(c); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func runBlock(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var iface, gateway, secsArg string
	if c.Bool("auto") {
		if c.NArg() != 1 {
			_ = cli.ShowCommandHelp(c, "block")
			return cli.NewExitError("usage: aroundtheclock block --auto <TIMEOUT_SECONDS>", 2)
		}
		gw, ifc, err := blocker.DiscoverRoute(ctx)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		iface, gateway, secsArg = ifc, gw, c.Args().Get(0)
	} else {
		if c.NArg() != 3 {
			_ = cli.ShowCommandHelp(c, "block")
			return cli.NewExitError("usage: aroundtheclock block <INTERFACE> <GATEWAY> <TIMEOUT_SECONDS>", 2)
		}
		iface, gateway, secsArg = c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
	}
	secs, err := strconv.Atoi(secsArg)
	if err != nil || secs <= 0 {
		return cli.NewExitError(fmt.Sprintf("invalid timeout '%s', expected a positive number of seconds", secsArg), 2)
	}
	b := blocker.NewArpspoofBlocker()
	if c.Bool("sudo") {
		spec, _ := json.Marshal(map[string]bool{"Sudo": true})
		err := b.DecodeConfig(blocker.BlockerConfig{
			Name:          "arpspoof",
			Type:          blocker.ArpspoofBlockerType,
			Specification: spec,
		})
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}
	err = b.Block(ctx, blocker.BlockTarget{
		Interface: iface,
		Gateway:   gateway,
		Timeout:   time.Duration(secs) * time.Second,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func runTimes(c *cli.Context) error {
	if err := loadConfig(c); err != nil {
		return err
	}
	src, err := app.BuildSource(config.Props.Source)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer src.StopAndWait()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched, err := src.Next(ctx, schedule.Day(time.Now()))
	if err != nil {
		fmt.Printf("no schedule available: %s\n", err)
	} else {
		fmt.Printf("schedule for %s:\n", sched.Day.Format(time.DateOnly))
		for _, iv := range sched.Intervals {
			fmt.Printf("  %-10s %s  %v\n", iv.Label, iv.Start.Format(time.DateTime), iv.Duration)
		}
	}
	if config.Props.HistoryPath == "" {
		return nil
	}
	store, err := history.Open(config.Props.HistoryPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer store.Close()
	entries, err := store.Recent(ctx, 10)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if len(entries) > 0 {
		fmt.Println("recent sessions:")
		for _, e := range entries {
			line := fmt.Sprintf("  %-10s %s  %s", e.Label, e.StartedAt.Format(time.DateTime), e.State)
			if e.Err != "" {
				line += "  " + e.Err
			}
			fmt.Println(line)
		}
	}
	return nil
}

func loadConfig(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		return cli.NewExitError("required: config path", 2)
	}
	if err := config.Load(path); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
