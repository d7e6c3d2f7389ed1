package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hatsubai/internal/bot"
	"hatsubai/internal/catalog"
	"hatsubai/internal/config"
	"hatsubai/internal/health"
	"hatsubai/internal/keepalive"
	"hatsubai/internal/notifier"
	"hatsubai/internal/roster"
	"hatsubai/internal/scheduler"
	"hatsubai/internal/util"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const banner = "--- Spotify Release Watcher (Hatsubai) ---"

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hatsubai",
		Short:         "Announce new Spotify releases from a roster of artists on Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newRosterCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, the release timer and the HTTP probes",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func newScanCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one verbose release scan and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}
			dryRun = dryRun || appConfig.DryRun
			if err := appConfig.Validate(!dryRun); err != nil {
				return err
			}

			log.Println(util.BlueBold(banner))
			log.Println(util.BlueBold("--- Single Run Mode ---"))
			if dryRun {
				log.Println(util.YellowBold(" *** DRY RUN MODE ENABLED ***"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ros := roster.Load(appConfig.Roster.Files, appConfig.Roster.Column, log.Default())
			var sink notifier.Notifier = notifier.DryRun{Logger: log.Default()}
			if !dryRun {
				session, err := bot.NewSession(appConfig.Discord.Token)
				if err != nil {
					return err
				}
				sink = notifier.NewDiscord(session, appConfig.Discord.ChannelID, appConfig.Discord.MentionUserID, log.Default())
			}
			client := catalog.NewClient(appConfig, log.Default())
			scanner := scheduler.NewScanner(ros, client, sink, nil, appConfig.Lookback(), appConfig.Cooldown())

			res, err := scanner.Scan(ctx, scheduler.TriggerOnce)
			if err != nil {
				return err
			}
			if len(res.Records) > 0 {
				rows := make([][]string, 0, len(res.Records))
				for _, rec := range res.Records {
					rows = append(rows, []string{rec.ArtistName, rec.Title, notifier.TypeLabel(rec.Type), rec.ReleaseDate.Format("2006-01-02"), rec.URL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Artist", "Release", "Type", "Date", "Link"}, rows))
			}
			if res.Errors() > 0 {
				return fmt.Errorf("scan finished with %s", util.Plural(res.Errors(), "error", "errors"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print found releases instead of posting them")
	return cmd
}

func newRosterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Print the tracked artists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}
			ros := roster.Load(appConfig.Roster.Files, appConfig.Roster.Column, log.Default())
			names := ros.Names()
			rows := make([][]string, 0, len(names))
			for i, name := range names {
				rows = append(rows, []string{strconv.Itoa(i + 1), name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Artist"}, rows, 1))
			fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s.\n", util.Plural(ros.Len(), "artist", "artists"))
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	appConfig, err := config.Load()
	if err != nil {
		return err
	}
	if err := appConfig.Validate(true); err != nil {
		return err
	}

	log.Println(util.BlueBold(banner))
	if appConfig.DryRun {
		log.Println(util.YellowBold(" *** DRY RUN MODE ENABLED (via config) ***"))
	}
	log.Printf("%s Spotify client %s, Discord token %s.", util.Cyan("[CONFIG]"),
		util.Mask(appConfig.Spotify.ClientID, 4), util.Mask(appConfig.Discord.Token, 4))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	started := time.Now()

	appBaseLogger := log.Default()
	ros := roster.Load(appConfig.Roster.Files, appConfig.Roster.Column, appBaseLogger)
	if ros.Len() == 0 {
		log.Printf("%s %s No artists loaded; scans will be empty.", util.Yellow("!!! WARN"), util.Cyan("[ROSTER]"))
	}

	session, err := bot.NewSession(appConfig.Discord.Token)
	if err != nil {
		return err
	}
	var sink notifier.Notifier = notifier.NewDiscord(session, appConfig.Discord.ChannelID, appConfig.Discord.MentionUserID, appBaseLogger)
	if appConfig.DryRun {
		sink = notifier.DryRun{Logger: appBaseLogger}
	}
	var ledger *notifier.Ledger
	if appConfig.Notify.Dedupe {
		ledger = notifier.NewLedger()
	}

	client := catalog.NewClient(appConfig, appBaseLogger)
	scanner := scheduler.NewScanner(ros, client, sink, ledger, appConfig.Lookback(), appConfig.Cooldown())
	discordBot := bot.New(session, appConfig.Discord.GuildID, appConfig.Discord.CommandPrefix, scanner, appBaseLogger)

	opts := scheduler.Options{
		CronSpec:    appConfig.Schedule.CronSpec,
		InitialScan: appConfig.Schedule.InitialScan,
	}
	if appConfig.KeepAliveEnabled() {
		pinger := keepalive.New(appConfig.KeepAlive.URL, appBaseLogger)
		opts.Jobs = append(opts.Jobs, scheduler.Job{Name: "Keep-alive", Spec: appConfig.KeepAlive.CronSpec, Func: pinger.Job(ctx)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Start(gctx, appConfig.ListenAddr(), health.NewMux(discordBot, started))
	})
	g.Go(func() error {
		return discordBot.Run(gctx)
	})
	g.Go(func() error {
		return scanner.Start(gctx, opts)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Println(util.BlueBold("--- Shut down cleanly ---"))
	}
	return nil
}
