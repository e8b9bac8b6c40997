// Command sstash starts the key-value server: a primary read-write
// port, a read-only port, and, for a leader, a replication listener
// for connecting followers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstash/sstash/internal/config"
	"github.com/sstash/sstash/internal/dispatch"
	"github.com/sstash/sstash/internal/logging"
	"github.com/sstash/sstash/internal/manager"
	"github.com/sstash/sstash/internal/metrics"
	"github.com/sstash/sstash/internal/replication"
	"github.com/sstash/sstash/internal/server"
	"github.com/sstash/sstash/internal/snapshot"
	"github.com/sstash/sstash/internal/stash"
)

var rootCmd = &cobra.Command{
	Use:   "sstash <primary_port> <read_only_port> [master_ip master_port]",
	Short: "in-memory key-value store with TTL, snapshots, and single-leader replication",
	Args:  cobra.RangeArgs(2, 4),
	RunE:  run,
}

func init() {
	cobra.OnInitialize(config.InitViper)
	config.BindFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// managerRestorer adapts *manager.Manager to snapshot.Restorer; the
// manager returns a concrete *stash.Stash, which already satisfies
// snapshot.RestoreTarget, but Go requires the interface's own return
// type at the method-signature level, hence this one-line bridge.
type managerRestorer struct {
	mgr *manager.Manager
}

func (r managerRestorer) Restore(name string, offHeap bool, maxKeyCount int) (snapshot.RestoreTarget, error) {
	return r.mgr.Restore(name, offHeap, maxKeyCount)
}

// schedulerLifecycle bridges dispatch.Lifecycle to the snapshot
// scheduler and writer, so a CREATE starts tracking its stash for
// periodic snapshotting and a DROP stops tracking it and removes its
// committed snapshot file.
type schedulerLifecycle struct {
	scheduler *snapshot.Scheduler
	writer    *snapshot.Writer
}

func (l schedulerLifecycle) Created(name string, s *stash.Stash) {
	l.scheduler.Track(name, s.MaxKeyCount, s.OffHeap, s)
}

func (l schedulerLifecycle) Dropped(name string) {
	l.scheduler.Untrack(name)
	l.writer.Delete(name)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromArgs(cmd, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New("sstash", logging.ParseLevel(cfg.LogLevel))

	mgr, err := manager.New(manager.Config{
		DataDir:            cfg.DataDir,
		DefaultMaxKeyCount: cfg.DefaultMaxKeyCount,
		StripeCount:        cfg.StripeCount,
		Logger:             log,
	})
	if err != nil {
		log.Errorf("creating stash manager: %v", err)
		os.Exit(2)
	}

	reader := snapshot.NewReader(cfg.DataDir, log, nowMillis)
	if err := reader.LoadAll(managerRestorer{mgr}); err != nil {
		log.Warnf("loading snapshots: %v", err)
	}

	writer := snapshot.NewWriter(cfg.DataDir, log)
	scheduler := snapshot.NewScheduler(writer, cfg.SnapshotInterval, log)
	mgr.Each(func(name string, s *stash.Stash) {
		scheduler.Track(name, s.MaxKeyCount, s.OffHeap, s)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go runExpireLoop(ctx, mgr, cfg.ExpireInterval)

	var leader *replication.Leader
	var forwarder dispatch.Forwarder
	if cfg.MasterAddr == "" {
		leader = replication.NewLeader(log)
		forwarder = leader
	}

	disp := dispatch.New(mgr, forwarder, log)
	disp.WithLifecycle(schedulerLifecycle{scheduler: scheduler, writer: writer})

	var mtr *metrics.Metrics
	if cfg.MetricsAddr != "" {
		mtr = metrics.New()
		disp.WithMetrics(mtr)
		if leader != nil {
			leader.WithMetrics(mtr)
		}
		go func() {
			if err := mtr.ListenAndServe(cfg.MetricsAddr); err != nil {
				log.Warnf("metrics server stopped: %v", err)
			}
		}()
		go pollMetrics(ctx, mtr, mgr, leader)
	}

	if cfg.MasterAddr != "" {
		follower := replication.NewFollower(cfg.MasterAddr, disp, log)
		go follower.Run(ctx)
	}

	primary := server.New(cfg.PrimaryAddr, false, disp, log)
	readOnly := server.New(cfg.ReadOnlyAddr, true, disp, log)

	servers := []*server.Server{primary, readOnly}
	errCh := make(chan error, 3)
	go func() { errCh <- primary.ListenAndServe() }()
	go func() { errCh <- readOnly.ListenAndServe() }()

	if leader != nil {
		replListener := server.NewReplicationListener(cfg.ReplicationAddr, leader, log)
		servers = append(servers, replListener)
		go func() { errCh <- replListener.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err := <-errCh:
		log.Errorf("listener failed: %v", err)
		stop()
		os.Exit(2)
	}

	for _, s := range servers {
		_ = s.Close()
	}
	scheduler.Stop()
	mgr.Each(func(name string, s *stash.Stash) {
		if err := writer.WriteIfDirty(name, s.MaxKeyCount, s.OffHeap, s); err != nil {
			log.Warnf("final snapshot flush failed for %s: %v", name, err)
		}
	})
	mgr.CloseAll()
	return nil
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// runExpireLoop is the single shared ticker goroutine active TTL expiry
// runs on: one sweep across every stash the manager holds per tick,
// rather than a timer per stash.
func runExpireLoop(ctx context.Context, mgr *manager.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.ExpireDue()
		}
	}
}

func pollMetrics(ctx context.Context, mtr *metrics.Metrics, mgr *manager.Manager, leader *replication.Leader) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mtr.SetStashCount(mgr.Count())
			var keys int
			mgr.Each(func(_ string, s *stash.Stash) {
				if n, err := s.KeyCount(); err == nil {
					keys += n
				}
			})
			mtr.SetKeyCount(keys)
			if leader != nil {
				mtr.SetFollowerCount(leader.FollowerCount())
			}
		}
	}
}
