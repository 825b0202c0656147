package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulsechat/internal/config"
	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/notify"
	"github.com/pulsechat/pulsechat/internal/session"
	"github.com/pulsechat/pulsechat/internal/transport"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and keep local state in sync",
		Long:  "Connects to the server, drains the offline queue, and mirrors conversation state until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	cmd.Flags().Int64("peer", 0, "Conversation to open (defaults to the remembered one)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	log := logging.Component("run")
	bus := notify.NewBus()
	s := session.New(session.Config{
		LocalUserID:    cfg.Server.UserID,
		PageSize:       cfg.Sync.PageSize,
		CacheLimit:     cfg.Sync.CacheLimit,
		TypingDebounce: cfg.Sync.TypingDebounce,
		FetchTimeout:   cfg.Server.RequestTimeout,
	}, newClient(cfg), kv, bus)

	if err := bus.Subscribe("run-log", notify.Filter{}, func(n notify.Notification) {
		switch n.Kind {
		case notify.KindConnectivityChanged:
			log.Info().Bool("online", n.Online).Msg("connectivity changed")
		case notify.KindQueueFlushed:
			log.Info().Int("count", n.Count).Msg("queued messages delivered")
		case notify.KindTimelineChanged:
			log.Debug().Int64("peer_id", n.PeerID).Msg("timeline updated")
		case notify.KindRosterChanged:
			log.Debug().Int64("peer_id", n.PeerID).Msg("roster updated")
		}
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector := transport.NewConnector(cfg.WebsocketURL(), cfg.Server.AuthToken, cfg.Server.UserID, cfg.Server.ReconnectInterval)
	go connector.Maintain(ctx, s.HandleEvent, func(online bool) {
		s.SetOnline(online, senderFor(connector, online))
	})

	if err := s.RefreshContacts(ctx); err != nil {
		log.Warn().Err(err).Msg("initial contact load failed")
	}

	peerID, _ := cmd.Flags().GetInt64("peer")
	if peerID == 0 {
		if saved, err := config.DefaultContextStore().Load(); err == nil {
			peerID = saved.PeerID
		}
	}
	if peerID != 0 {
		s.OpenConversation(ctx, peerID)
		log.Info().Int64("peer_id", peerID).Msg("conversation opened")
	}

	log.Info().Int("pending", s.PendingCount()).Msg("sync running, press Ctrl-C to stop")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// senderFor resolves the connector's live channel into the session's
// sender, nil while offline.
func senderFor(c *transport.Connector, online bool) session.Sender {
	if !online {
		return nil
	}
	if ch := c.Channel(); ch != nil {
		return ch
	}
	return nil
}
