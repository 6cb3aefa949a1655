package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/oclfilt/internal/common"
	"example.com/oclfilt/internal/config"
	"example.com/oclfilt/internal/server"
)

type daemonConfig struct {
	Port        int              `yaml:"port"`
	StorageDir  string           `yaml:"storageDir"`
	DataDir     string           `yaml:"dataDir"`
	ProfilesDir string           `yaml:"profilesDir"`
	Concurrency int              `yaml:"concurrency"`
	Logs        common.LogConfig `yaml:"logs"`
}

func loadConfig(path string) (daemonConfig, error) {
	var cfg daemonConfig
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
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	cfg.StorageDir = config.ResolvePath(baseDir, cfg.StorageDir)
	cfg.DataDir = config.ResolvePath(baseDir, cfg.DataDir)
	cfg.ProfilesDir = config.ResolvePath(baseDir, cfg.ProfilesDir)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "ocld.log"
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
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 10*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	if err := common.ConfigureLogFile(cfg.Logs, os.Stdout); err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer common.CloseLogFile()

	profiles, err := server.LoadProfileDir(cfg.ProfilesDir)
	if err != nil {
		common.Fatalf("load profiles: %v", err)
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:  cfg.StorageDir,
		DataDir:     cfg.DataDir,
		Profiles:    profiles,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if strings.TrimSpace(*addr) != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	common.Logf("ocld listening on %s (%d profiles, concurrency %d)", listenAddr, len(profiles), cfg.Concurrency)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		common.Logf("shutdown: %v", err)
	}
	common.Logf("ocld stopped")
}
