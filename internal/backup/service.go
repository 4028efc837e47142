// Package backup produces compressed snapshots of the database on a cron
// schedule and prunes old ones past the retention horizon.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wbautoslot/pkg/logx"
)

type Config struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
	// Schedule is a 5-field cron expression. Default: daily at 03:00.
	Schedule      string `json:"schedule"`
	RetentionDays int    `json:"retention_days"`
}

// Store is the snapshot source. The storage layer implements it with an
// online VACUUM INTO, so a backup never blocks writers.
type Store interface {
	BackupTo(ctx context.Context, path string) error
}

type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	store Store
	log   logx.Logger
	c     *cron.Cron

	// now is swapped in tests.
	now func() time.Time
}

func New(cfg Config, store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.Dir == "" {
		cfg.Dir = "backups"
	}
	return &Service{cfg: cfg, store: store, log: log, now: time.Now}
}

func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}

	c := cron.New()
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.RunNow(ctx, "scheduled"); err != nil {
			s.log.Error("scheduled backup failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("backup schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("backup schedule active",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("dir", s.cfg.Dir),
		logx.Int("retention_days", s.cfg.RetentionDays))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunNow takes one snapshot, gzips it, and prunes expired backups.
// kind tags the file name ("manual" or "scheduled").
func (s *Service) RunNow(ctx context.Context, kind string) (Info, error) {
	s.mu.Lock()
	dir := s.cfg.Dir
	s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("backup dir: %w", err)
	}

	start := s.now()
	stamp := start.Format("20060102_150405")
	raw := filepath.Join(dir, fmt.Sprintf("database_backup_%s_%s.db", kind, stamp))

	if err := s.store.BackupTo(ctx, raw); err != nil {
		return Info{}, fmt.Errorf("snapshot: %w", err)
	}
	final := raw + ".gz"
	if err := gzipFile(raw, final); err != nil {
		_ = os.Remove(raw)
		return Info{}, fmt.Errorf("compress: %w", err)
	}
	_ = os.Remove(raw)

	fi, err := os.Stat(final)
	if err != nil {
		return Info{}, err
	}

	removed := s.prune()
	s.log.Info("backup created",
		logx.String("file", filepath.Base(final)),
		logx.Int64("bytes", fi.Size()),
		logx.Int("pruned", removed),
		logx.Duration("took", time.Since(start)))

	return Info{Name: filepath.Base(final), Size: fi.Size(), CreatedAt: fi.ModTime()}, nil
}

// List returns existing backups, newest first.
func (s *Service) List() ([]Info, error) {
	s.mu.Lock()
	dir := s.cfg.Dir
	s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gz") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Name: e.Name(), Size: fi.Size(), CreatedAt: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) prune() int {
	s.mu.Lock()
	dir := s.cfg.Dir
	retention := s.cfg.RetentionDays
	s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -retention)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gz") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
