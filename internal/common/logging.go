package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu  sync.Mutex
	logger = log.New(os.Stderr, "[oclfilt] ", log.LstdFlags|log.Lmicroseconds)
	rotor  *lumberjack.Logger
)

// LogConfig describes an optional rotating log file that receives a copy of
// every log line.
type LogConfig struct {
	Directory  string `yaml:"directory"`
	FileName   string `yaml:"fileName"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Path returns the file the rotator writes to.
func (c LogConfig) Path() string {
	name := c.FileName
	if name == "" {
		name = "oclfilt.log"
	}
	if c.Directory == "" {
		return name
	}
	return filepath.Join(c.Directory, name)
}

func Logf(format string, args ...interface{}) {
	logMu.Lock()
	l := logger
	logMu.Unlock()
	l.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logMu.Lock()
	l := logger
	logMu.Unlock()
	l.Fatalf(format, args...)
}

// SetLogOutput replaces the destination of Logf. Passing nil restores stderr.
func SetLogOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logMu.Lock()
	logger = log.New(w, "[oclfilt] ", log.LstdFlags|log.Lmicroseconds)
	logMu.Unlock()
}

// ConfigureLogFile tees the logger into a lumberjack-rotated file alongside
// console, which is stderr for CLI tools and stdout for the daemon.
func ConfigureLogFile(cfg LogConfig, console io.Writer) error {
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	r := &lumberjack.Logger{
		Filename:   cfg.Path(),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	if console == nil {
		console = os.Stderr
	}
	logMu.Lock()
	old := rotor
	rotor = r
	logMu.Unlock()
	if old != nil {
		old.Close()
	}
	SetLogOutput(io.MultiWriter(console, r))
	return nil
}

// CloseLogFile flushes and closes the rotating log file, if any.
func CloseLogFile() error {
	logMu.Lock()
	r := rotor
	rotor = nil
	logMu.Unlock()
	SetLogOutput(nil)
	if r == nil {
		return nil
	}
	return r.Close()
}
