package main

import (
	"context"
	"log"
	"time"

	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/queue"
)

type jobSource interface {
	GetAllJobs(ctx context.Context) ([]*queue.Job, error)
	Depth(ctx context.Context) (int, error)
}

type openEntryCounter interface {
	CountOpenEntries(ctx context.Context) (int, error)
}

func startMetricsCollector(ctx context.Context, jobs jobSource, entries openEntryCounter, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		updateGauges(ctx, jobs, entries)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func updateGauges(ctx context.Context, jobs jobSource, entries openEntryCounter) {
	all, err := jobs.GetAllJobs(ctx)
	if err != nil {
		log.Printf("Failed to get jobs for metrics: %v", err)
	} else {
		jobsByStatus := make(map[string]map[string]int)
		for _, job := range all {
			status := string(job.Status)
			if jobsByStatus[status] == nil {
				jobsByStatus[status] = make(map[string]int)
			}
			jobsByStatus[status][job.Type]++
		}
		metrics.UpdateJobGauges(jobsByStatus)
	}

	if depth, err := jobs.Depth(ctx); err == nil {
		metrics.UpdateQueueDepth(depth)
	}

	open, err := entries.CountOpenEntries(ctx)
	if err != nil {
		log.Printf("Failed to count open time entries: %v", err)
		return
	}
	metrics.UpdateOpenTimeEntries(open)
}
