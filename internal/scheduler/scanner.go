package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"hatsubai/internal/catalog"
	"hatsubai/internal/notifier"
	"hatsubai/internal/processor"
	"hatsubai/internal/release"
	"hatsubai/internal/roster"
	"hatsubai/internal/telemetry"
	"hatsubai/internal/util"

	"github.com/google/uuid"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerInitial   Trigger = "initial"
	TriggerOnce      Trigger = "once"
)

var ErrScanInProgress = errors.New("a release scan is already running")

// CooldownError refuses a manual scan requested too soon after the last one.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("manual scan cooling down, %ds left", e.Seconds())
}

// Seconds is the remaining wait rounded up to whole seconds.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// Catalog is what a scan needs from the Spotify client.
type Catalog interface {
	processor.Finder
	EnsureToken(ctx context.Context) error
}

// State is the scanner's mutable state. LastManual only moves on manual
// triggers; the cooldown is measured from it.
type State struct {
	Scanning   bool
	LastManual time.Time
	LastScan   time.Time
	LastResult *Result
}

type Result struct {
	RunID        string
	Trigger      Trigger
	Started      time.Time
	Duration     time.Duration
	Checked      int
	NotFound     int
	Failed       int
	Found        int
	Sent         int
	Duplicates   int
	NotifyFailed int
	Records      []release.Record
}

// Errors counts everything that went wrong in the run.
func (r Result) Errors() int {
	return r.Failed + r.NotifyFailed
}

type Scanner struct {
	roster   *roster.Roster
	catalog  Catalog
	notifier notifier.Notifier
	ledger   *notifier.Ledger
	lookback time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// NewScanner wires a scanner. A nil ledger disables deduplication, so every
// scan re-announces everything inside the lookback window.
func NewScanner(r *roster.Roster, c Catalog, n notifier.Notifier, ledger *notifier.Ledger, lookback, cooldown time.Duration) *Scanner {
	telemetry.Init()
	telemetry.SetTrackedArtists(r.Len())
	return &Scanner{
		roster:   r,
		catalog:  c,
		notifier: n,
		ledger:   ledger,
		lookback: lookback,
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (s *Scanner) ArtistCount() int {
	return s.roster.Len()
}

func (s *Scanner) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin claims the scanner. Both the timer and manual triggers go through
// here, so scans never overlap.
func (s *Scanner) begin(manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Scanning {
		return ErrScanInProgress
	}
	now := s.now()
	if manual && !s.state.LastManual.IsZero() {
		if elapsed := now.Sub(s.state.LastManual); elapsed < s.cooldown {
			return &CooldownError{Remaining: s.cooldown - elapsed}
		}
	}
	s.state.Scanning = true
	if manual {
		s.state.LastManual = now
	}
	return nil
}

func (s *Scanner) finish(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Scanning = false
	if res != nil && res.RunID != "" {
		s.state.LastScan = res.Started
		s.state.LastResult = res
	}
}

// TriggerManual runs a verbose scan on behalf of a chat command. ack is called
// once the scan has been accepted, before any catalog request is made.
func (s *Scanner) TriggerManual(ctx context.Context, ack func(artists int)) (Result, error) {
	if err := s.begin(true); err != nil {
		telemetry.ScansSkipped.WithLabelValues(string(TriggerManual)).Inc()
		return Result{}, err
	}
	var res Result
	defer func() { s.finish(&res) }()

	if ack != nil {
		ack(s.roster.Len())
	}
	res = s.run(ctx, TriggerManual, false)
	return res, nil
}

// Scan runs a verbose scan unless one is already running.
func (s *Scanner) Scan(ctx context.Context, trigger Trigger) (Result, error) {
	if err := s.begin(false); err != nil {
		telemetry.ScansSkipped.WithLabelValues(string(trigger)).Inc()
		return Result{}, err
	}
	var res Result
	defer func() { s.finish(&res) }()

	res = s.run(ctx, trigger, false)
	return res, nil
}

// RunScheduled is the timer path: quiet, and skipped while another scan runs.
func (s *Scanner) RunScheduled(ctx context.Context) (Result, error) {
	if err := s.begin(false); err != nil {
		telemetry.ScansSkipped.WithLabelValues(string(TriggerScheduled)).Inc()
		return Result{}, err
	}
	var res Result
	defer func() { s.finish(&res) }()

	res = s.run(ctx, TriggerScheduled, true)
	return res, nil
}

func (s *Scanner) run(ctx context.Context, trigger Trigger, quiet bool) Result {
	res := Result{
		RunID:   strings.SplitN(uuid.NewString(), "-", 2)[0],
		Trigger: trigger,
		Started: s.now(),
	}
	telemetry.ScansTotal.WithLabelValues(string(trigger)).Inc()
	scanTag := util.CyanBold(fmt.Sprintf("[SCAN %s]", res.RunID))
	names := s.roster.Names()
	if !quiet {
		log.Printf("%s Checking %s for releases since %s...", scanTag,
			util.BlueBold(util.Plural(len(names), "artist", "artists")),
			release.Cutoff(res.Started, s.lookback).Format("2006-01-02 15:04"))
	}

	if swapper, ok := s.catalog.(interface {
		GetLogger() *log.Logger
		SetLogger(*log.Logger)
	}); ok && quiet {
		original := swapper.GetLogger()
		swapper.SetLogger(catalog.NilLogger)
		defer swapper.SetLogger(original)
	}
	// A failed exchange is logged by the client; the artist calls below
	// retry it on their own.
	_ = s.catalog.EnsureToken(ctx)

	cutoff := release.Cutoff(res.Started, s.lookback)
	anyOutput := false
	for _, name := range names {
		if ctx.Err() != nil {
			log.Printf("%s %s after %d of %d artists: %v", scanTag, util.Yellow("Stopped"), res.Checked, len(names), ctx.Err())
			break
		}
		records, didLog, err := processor.ProcessArtist(ctx, name, s.catalog, cutoff, quiet)
		res.Checked++
		telemetry.ArtistsChecked.Inc()
		if didLog {
			anyOutput = true
		}
		if err != nil {
			res.Failed++
			telemetry.ArtistErrors.Inc()
			if !didLog {
				log.Println()
				log.Printf("  %s%s", util.BlueBold("Checking: "), name)
			}
			anyOutput = true
			if errors.Is(err, catalog.ErrArtistNotFound) {
				res.NotFound++
				log.Printf("  %s", util.Yellow("[STATUS] SKIPPED (Not Found)"))
			} else {
				log.Printf("  %s %v", util.RedBold("[STATUS] ERROR"), err)
			}
			continue
		}
		res.Records = append(res.Records, records...)
	}
	res.Found = len(res.Records)
	telemetry.ReleasesFound.Add(float64(res.Found))

	if res.Found > 0 {
		if anyOutput {
			log.Println()
		}
		log.Printf("%s Sending %s...", scanTag, util.GreenBold(util.Plural(res.Found, "release alert", "release alerts")))
	}
	for _, rec := range res.Records {
		if s.ledger.Seen(rec) {
			res.Duplicates++
			if !quiet {
				log.Printf("  %s %s by %s already announced.", util.Gray("[NOTIFY]"), rec.Title, rec.ArtistName)
			}
			continue
		}
		if err := s.notifier.Notify(ctx, rec); err != nil {
			res.NotifyFailed++
			telemetry.NotificationsFailed.Inc()
			log.Printf("  %s %v", util.RedBold("!!! ERROR [NOTIFY]"), err)
			continue
		}
		s.ledger.Mark(rec, s.now())
		res.Sent++
		telemetry.NotificationsSent.Inc()
	}

	res.Duration = s.now().Sub(res.Started)
	telemetry.ScanDuration.Observe(res.Duration.Seconds())
	if !quiet || res.Found > 0 || res.Errors() > 0 {
		logRunStats(scanTag, res, len(names), anyOutput)
	}
	return res
}

func logRunStats(scanTag string, res Result, total int, anyOutput bool) {
	if anyOutput {
		log.Println()
	}
	var statsParts []string
	statsParts = append(statsParts, "Checked: "+util.BlueBold(strconv.Itoa(res.Checked)+"/"+strconv.Itoa(total)))
	statsParts = append(statsParts, "New: "+util.GreenBold(strconv.Itoa(res.Found)))
	if res.Sent > 0 {
		statsParts = append(statsParts, "Sent: "+util.GreenBold(strconv.Itoa(res.Sent)))
	}
	if res.Duplicates > 0 {
		statsParts = append(statsParts, "Already sent: "+util.Gray(strconv.Itoa(res.Duplicates)))
	}
	if res.NotFound > 0 {
		statsParts = append(statsParts, "Skipped: "+util.YellowBold(strconv.Itoa(res.NotFound)))
	}
	if hard := res.Failed - res.NotFound; hard > 0 {
		statsParts = append(statsParts, "Failed: "+util.RedBold(strconv.Itoa(hard)))
	}
	if res.NotifyFailed > 0 {
		statsParts = append(statsParts, util.Purple("Undelivered: ")+util.Purple(strconv.Itoa(res.NotifyFailed)))
	}
	log.Printf("%s %s %s", scanTag, util.Cyan("[Run Stats]"), strings.Join(statsParts, " | "))

	switch {
	case res.Failed-res.NotFound > 0 || res.NotifyFailed > 0:
		log.Println(util.Red("  Run completed with errors."))
	case res.NotFound > 0:
		log.Println(util.Yellow("  Run completed with some skipped artists."))
	default:
		log.Println(util.Green("  Run completed successfully."))
	}
}
