package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"hatsubai/internal/util"

	"github.com/robfig/cron/v3"
)

const scheduleTagText = "[SCHEDULE]"

// Job is an extra cron entry run alongside the release scan.
type Job struct {
	Name string
	Spec string
	Func func()
}

type Options struct {
	CronSpec    string
	InitialScan bool
	Jobs        []Job
}

// NewCron builds the cron runner shared by every periodic job.
func NewCron() *cron.Cron {
	return cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
}

// jobFunc is the timer callback: a quiet scan that collapses into a single
// line when nothing happened.
func (s *Scanner) jobFunc(ctx context.Context) func() {
	schedulerTagColored := util.YellowBold(scheduleTagText)
	return func() {
		runStartTime := s.now()
		res, err := s.RunScheduled(ctx)
		if errors.Is(err, ErrScanInProgress) {
			log.Printf("%s %s", schedulerTagColored, util.Yellow("Previous scan still running, skipping this tick."))
			return
		}
		if err != nil {
			log.Printf("%s %s %v", util.RedBold("!!! ERROR"), schedulerTagColored, err)
			return
		}

		if res.Found == 0 && res.Errors() == 0 {
			dayWithSuffix := strconv.Itoa(runStartTime.Day()) + util.GetOrdinalSuffix(runStartTime.Day())
			dateTimePart := fmt.Sprintf("%s %s %d at %s",
				dayWithSuffix, runStartTime.Month().String(), runStartTime.Year(), runStartTime.Format("15:04"))
			durationPart := fmt.Sprintf("took %s", res.Duration.Round(time.Millisecond).String())
			detailsInsideParentheses := util.Gray(fmt.Sprintf("%s, %s", dateTimePart, durationPart))

			message := "No artists tracked."
			if res.Checked > 0 {
				message = util.Plural(res.Checked, "artist", "artists") + " checked, all quiet."
			}
			log.Printf("%s %s %s%s%s",
				schedulerTagColored,
				message,
				util.Gray("("),
				detailsInsideParentheses,
				util.Gray(")"))
			return
		}

		log.Printf("%s ----- Scheduled Run Finished (%s, Duration: %s) -----",
			schedulerTagColored,
			s.now().Format("2006-01-02 15:04:05"),
			res.Duration.Round(time.Millisecond))
		if res.Errors() > 0 {
			log.Printf("%s   Note: Scheduled run completed with %s.", schedulerTagColored, util.Yellow("issues"))
		}
		log.Println()
	}
}

// Start registers the scan and any extra jobs, optionally performs a verbose
// initial scan and then blocks until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context, opts Options) error {
	schedulerTagColored := util.YellowBold(scheduleTagText)
	c := NewCron()
	if _, err := c.AddFunc(opts.CronSpec, s.jobFunc(ctx)); err != nil {
		return fmt.Errorf("add scan job %q: %w", opts.CronSpec, err)
	}
	for _, job := range opts.Jobs {
		if _, err := c.AddFunc(job.Spec, job.Func); err != nil {
			return fmt.Errorf("add %s job %q: %w", job.Name, job.Spec, err)
		}
		log.Printf("%s %s job: %s.", schedulerTagColored, job.Name, util.Yellow(job.Spec))
	}

	log.Printf("%s Cron Spec: %s.", schedulerTagColored, util.Yellow(opts.CronSpec))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	if opts.InitialScan {
		log.Printf("%s Performing initial check (verbose)...", schedulerTagColored)
		if _, err := s.Scan(ctx, TriggerInitial); err != nil {
			log.Printf("%s Initial check skipped: %v", schedulerTagColored, err)
		}
	}

	log.Printf("%s Scheduler active. Waiting for next run...", schedulerTagColored)
	<-ctx.Done()
	log.Printf("%s Stopping scheduler.", schedulerTagColored)
	return nil
}
