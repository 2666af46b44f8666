package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/repair"
	"example.com/readinmarsat/internal/server"
)

type repairConfig struct {
	PaddingStrategy string `yaml:"paddingStrategy"`
}

type config struct {
	Port        int              `yaml:"port"`
	StorageDir  string           `yaml:"storageDir"`
	Concurrency int              `yaml:"concurrency"`
	MaxBodyMB   int              `yaml:"maxBodyMB"`
	AuditLog    string           `yaml:"auditLog"`
	Repair      repairConfig     `yaml:"repair"`
	Logs        common.LogConfig `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	} else {
		cfg.StorageDir = resolvePath(cfg.StorageDir)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.MaxBodyMB <= 0 {
		cfg.MaxBodyMB = server.DefaultMaxBodyBytes >> 20
	}
	if cfg.AuditLog != "" {
		cfg.AuditLog = resolvePath(cfg.AuditLog)
	}
	strategy, err := repair.ParsePaddingStrategy(cfg.Repair.PaddingStrategy)
	if err != nil {
		return cfg, err
	}
	cfg.Repair.PaddingStrategy = string(strategy)
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "inmarsatd.log"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func main() {
	fs := pflag.NewFlagSet("inmarsatd", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "config/config.yaml", "path to configuration file")
	addr := fs.String("addr", "", "listen address (overrides config port)")
	readTimeout := fs.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	fs.Parse(os.Args[1:])

	log := common.Log()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if err := common.SetupLogging(cfg.Logs); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	metrics := common.NewMetrics()
	srv, err := server.NewServer(server.Options{
		StorageDir:   cfg.StorageDir,
		Padding:      repair.PaddingStrategy(cfg.Repair.PaddingStrategy),
		MaxBodyBytes: int64(cfg.MaxBodyMB) << 20,
		Concurrency:  cfg.Concurrency,
		Metrics:      metrics,
		AuditLog:     cfg.AuditLog,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	metrics.Start()
	log.WithField("padding", cfg.Repair.PaddingStrategy).Infof("inmarsatd listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	metrics.Stop()
	log.Infof("inmarsatd stopped: %s", metrics.Snapshot())
}
