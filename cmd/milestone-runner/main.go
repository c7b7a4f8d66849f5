package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"bitbucket.org/mmdatafocus/bizmanage_backend/workflow"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Preview the eligible milestones without creating invoices.")
	noLock := flag.Bool("no-lock", false, "Skip the redis single-runner lock (local runs without redis).")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = utils.SetUserNameInContext(ctx, "MilestoneRunner")

	scheduler := workflow.NewMilestoneScheduler(config.GetLogger(), nil)
	if !*noLock {
		config.ConnectRedisWithRetry()
		scheduler.Locker = config.GetRedisLock()
	}

	result, err := scheduler.Run(ctx, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler run failed: %v\n", err)
		os.Exit(1)
	}

	if result.DryRun {
		fmt.Printf("Dry run: %d milestone(s) eligible\n", result.Processed)
		return
	}
	fmt.Printf("Processed %d milestone(s)\n", result.Processed)
	for _, e := range result.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
