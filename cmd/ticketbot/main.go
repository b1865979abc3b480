// Command ticketbot drives a single ticket-acquisition run against the
// vendor's API: wait for sale start, pre-warm a purchase token, resolve any
// anti-abuse challenge, and race order creation the instant stock appears.
// Wiring shape (context+signal graceful shutdown, mux assembly) grounded
// on ndrandal-feed-simulator's cmd/feedsim/main.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hobr/ticketbot/internal/challenge"
	"github.com/hobr/ticketbot/internal/config"
	"github.com/hobr/ticketbot/internal/debugarchive"
	"github.com/hobr/ticketbot/internal/httpclient"
	"github.com/hobr/ticketbot/internal/journal"
	"github.com/hobr/ticketbot/internal/notify"
	"github.com/hobr/ticketbot/internal/secretstore"
	"github.com/hobr/ticketbot/internal/statusui"
	"github.com/hobr/ticketbot/internal/ticket"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "ticketbot",
		Short: "Automated ticket acquisition for the bilibili show vendor API",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "ticketbot.toml", "path to the TOML config file")

	root.AddCommand(runCmd(), configCmd(), loginCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the acquisition loop until a ticket is locked or a fatal error occurs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runAcquisition(cmd.Context(), cfg, passphrase)
		},
	}
	cmd.Flags().Int64("project-id", 0, "target project id")
	cmd.Flags().Int64("screen-id", 0, "target session/screen id")
	cmd.Flags().Int64("sku-id", 0, "target sku id")
	cmd.Flags().Float64("sleep", 0, "default request spacing in seconds")
	cmd.Flags().Bool("debug", false, "log every request/response verbatim")
	cmd.Flags().String("secret-path", "", "path to the encrypted identity file")
	cmd.Flags().String("dashboard-addr", "", "status dashboard listen address")
	cmd.Flags().StringVar(&passphrase, "passphrase", os.Getenv("TICKETBOT_PASSPHRASE"), "passphrase for the encrypted identity file")

	return cmd
}

func runAcquisition(ctx context.Context, cfg *config.Config, passphrase string) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.Warnf("received signal %v, shutting down", sig)
		cancel()
	}()

	if cfg.SecretPath != "" {
		identity, err := secretstore.Load(cfg.SecretPath, passphrase)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}
		cfg.Identity.Cookie = identity.Cookie
		cfg.Identity.Header = identity.Header
	}

	var archiver *debugarchive.Archiver
	var debugHook httpclient.DebugHook
	if cfg.Debug {
		a, err := debugarchive.New(ctx, debugarchive.Config{
			Dir:          cfg.Archive.Dir,
			MaxMegabytes: cfg.Archive.MaxMegabytes,
			IntervalMin:  cfg.Archive.IntervalMin,
			BufferSize:   4096,
			S3Bucket:     cfg.Archive.S3Bucket,
			S3Region:     cfg.Archive.S3Region,
			S3Prefix:     cfg.Archive.S3Prefix,
		})
		if err != nil {
			return fmt.Errorf("start debug archiver: %w", err)
		}
		archiver = a
		debugHook = archiver.Hook()
		go archiver.Run(ctx)
	}

	httpClient, err := httpclient.New(httpclient.Config{
		Timeout:           cfg.Timeout(),
		ProxyURL:          cfg.Network.ProxyURL,
		BanCooldown:       cfg.BanCooldown(),
		Debug:             debugHook,
		Header:            cfg.Identity.Header,
		Cookie:            cfg.Identity.Cookie,
		RequestsPerSecond: cfg.Network.RequestsPerSec,
	})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	api := ticket.NewAdapter(httpClient)

	var resolver ticket.ChallengeResolver
	if cfg.Challenge.Manual {
		resolver = challenge.NewManualResolver(cfg.Challenge.ManualPageURL, cfg.Challenge.ManualHeadless)
	} else {
		resolver = challenge.NewAutomaticResolver(cfg.Challenge.AutomaticURL)
	}

	notifier := notify.NewFanOut(notify.Config{
		System:        cfg.Notify.System,
		Sound:         cfg.Notify.Sound,
		PushPlusToken: cfg.Notify.PushPlusToken,
		BarkToken:     cfg.Notify.BarkToken,
		DingTalkToken: cfg.Notify.DingTalkToken,
		WeChatToken:   cfg.Notify.WeChatToken,
		FtqqToken:     cfg.Notify.FtqqToken,
		SMTP:          smtpConfig(cfg.Notify.SMTP),
	})

	target := ticket.TargetSpec{
		ProjectID:       cfg.Target.ProjectID,
		SessionID:       cfg.Target.ScreenID,
		SkuID:           cfg.Target.SkuID,
		OrderType:       cfg.Target.OrderType,
		Count:           cfg.Target.Count,
		Attendees:       attendees(cfg.Identity.Buyer),
		DeliveryAddress: cfg.Identity.Deliver,
		Phone:           cfg.Identity.Phone,
		Username:        cfg.Identity.Username,
		UID:             cfg.Identity.UID,
	}
	sched := ticket.NewSchedule(cfg.DefaultSleep(), 5*time.Second)

	engine := ticket.NewEngine(api, resolver, notifier, target, sched)

	mgr := statusui.NewManager(32)
	runID := fmt.Sprintf("run-%d-%d", cfg.Target.ProjectID, time.Now().Unix())

	var recorder *journal.Recorder
	var journalStore *journal.Store
	if cfg.Journal.MongoURI != "" {
		store, err := journal.NewStore(ctx, cfg.Journal.MongoURI)
		if err != nil {
			logrus.WithError(err).Warn("journal unavailable, continuing without it")
		} else {
			if err := store.Migrate(ctx); err != nil {
				logrus.WithError(err).Warn("journal migration failed")
			}
			if err := store.RunStarted(ctx, runID, cfg.Target.ProjectID); err != nil {
				logrus.WithError(err).Warn("journal run-start record failed")
			}
			go journal.RunRetention(ctx, store, cfg.Journal.RetentionDays)
			journalStore = store
			recorder = journal.NewRecorder(store, runID, 256)
			defer recorder.Close()
			defer store.Close(context.Background())
		}
	}

	engine.OnTransition = func(from, to ticket.State, code int) {
		mgr.Broadcast(statusui.Event{At: time.Now(), From: from.String(), To: to.String(), Code: code, ProjectID: cfg.Target.ProjectID})
		if recorder != nil {
			recorder.Record(journal.Transition{At: time.Now(), From: from.String(), To: to.String(), Code: code, ProjectID: cfg.Target.ProjectID})
		}
	}

	dashboard := statusui.NewServer(mgr)
	mux := http.NewServeMux()
	dashboard.Register(mux)
	srv := &http.Server{Addr: cfg.Dashboard.Addr, Handler: mux}
	go func() {
		logrus.Infof("status dashboard listening on http://%s", cfg.Dashboard.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Warn("dashboard server exited")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logrus.Infof("acquisition starting for project %d, sku %d", cfg.Target.ProjectID, cfg.Target.SkuID)
	err = engine.Run(ctx)

	outcome := "done"
	if err != nil {
		outcome = "error"
		if _, fatal := err.(*ticket.FatalError); fatal {
			outcome = "fatal"
		}
	}
	if journalStore != nil {
		if rerr := journalStore.RunFinished(context.Background(), runID, outcome); rerr != nil {
			logrus.WithError(rerr).Warn("journal run-finish record failed")
		}
	}

	if err != nil {
		logrus.WithError(err).Error("acquisition ended with an error")
		return err
	}
	logrus.Info("acquisition finished")
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the TOML configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config to --config's path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(configPath); err != nil {
				if os.IsExist(err) {
					return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
				}
				return err
			}
			fmt.Printf("wrote starter config to %s\n", configPath)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (file + env, secrets excluded)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, nil)
			if err != nil {
				return err
			}
			fmt.Printf("target:    project=%d screen=%d sku=%d count=%d\n",
				cfg.Target.ProjectID, cfg.Target.ScreenID, cfg.Target.SkuID, cfg.Target.Count)
			fmt.Printf("network:   timeout=%ds sleep=%.2fs rest=%ds proxy=%q rps=%.1f\n",
				cfg.Network.TimeoutSeconds, cfg.Network.SleepSeconds, cfg.Network.RestSeconds, cfg.Network.ProxyURL, cfg.Network.RequestsPerSec)
			fmt.Printf("dashboard: %s\n", cfg.Dashboard.Addr)
			fmt.Printf("archive:   dir=%s max=%dMB s3=%v\n", cfg.Archive.Dir, cfg.Archive.MaxMegabytes, cfg.Archive.S3Bucket != "")
			fmt.Printf("journal:   enabled=%v\n", cfg.Journal.MongoURI != "")
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func loginCmd() *cobra.Command {
	var passphrase string
	var cookiePairs []string
	var secretPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Encrypt captured session cookies into the identity file",
		Long: "Captures session cookies (e.g. SESSDATA, bili_jct) exported from a logged-in\n" +
			"browser session and stores them encrypted at --secret-path, to be decrypted\n" +
			"by `ticketbot run` at process start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("--passphrase (or TICKETBOT_PASSPHRASE) is required")
			}
			cookies := make(map[string]string, len(cookiePairs))
			for _, kv := range cookiePairs {
				name, value, ok := splitPair(kv)
				if !ok {
					return fmt.Errorf("invalid --cookie value %q, want name=value", kv)
				}
				cookies[name] = value
			}
			identity := secretstore.Identity{Cookie: cookies}
			if err := secretstore.Save(secretPath, passphrase, identity); err != nil {
				return fmt.Errorf("save identity: %w", err)
			}
			fmt.Printf("wrote encrypted identity to %s\n", secretPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", os.Getenv("TICKETBOT_PASSPHRASE"), "passphrase to encrypt the identity file with")
	cmd.Flags().StringArrayVar(&cookiePairs, "cookie", nil, "cookie as name=value, may be repeated")
	cmd.Flags().StringVar(&secretPath, "secret-path", "identity.enc", "where to write the encrypted identity file")

	return cmd
}

func splitPair(kv string) (name, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func attendees(buyers []map[string]any) []ticket.Attendee {
	out := make([]ticket.Attendee, len(buyers))
	for i, b := range buyers {
		out[i] = ticket.Attendee(b)
	}
	return out
}

func smtpConfig(s *config.SMTP) *notify.SMTPConfig {
	if s == nil {
		return nil
	}
	return &notify.SMTPConfig{
		Host:      s.Host,
		Port:      s.Port,
		User:      s.User,
		Pass:      s.Pass,
		Sender:    s.Sender,
		Receivers: s.Receivers,
	}
}
