package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	imageannotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/utils"
)

func main() {
	var configPath, writeConfig string
	var addr, src, dst, projects string
	var class int
	var classes string
	var autosave bool
	var assist bool
	var backend, url, model string
	var logLevel, logFormat string
	var version bool

	flag.StringVar(&configPath, "config", "", "config file (json or yaml); defaults to "+config.GetConfigPath()+" if present")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective config to this file and exit")

	flag.StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:5000)")
	flag.StringVar(&src, "src", "", "source image directory")
	flag.StringVar(&dst, "dst", "", "destination directory for YOLO label files")
	flag.StringVar(&projects, "projects", "", "directory for saved projects")
	flag.IntVar(&class, "class", 0, "class id for new boxes")
	flag.StringVar(&classes, "classes", "", "comma separated class names, by id")
	flag.BoolVar(&autosave, "autosave", true, "save labels before moving to another image")

	flag.BoolVar(&assist, "assist", false, "enable vision-model box suggestions")
	flag.StringVar(&backend, "backend", "", "assist backend: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "assist server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "assist model name")

	flag.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	flag.StringVar(&logFormat, "log-format", "", "log format: text|json")
	flag.BoolVar(&version, "version", false, "print version and exit")

	flag.Parse()
	if version {
		fmt.Println(imageannotator.GetVersion())
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = addr
		case "src":
			cfg.Session.SourceDir = src
		case "dst":
			cfg.Session.DestDir = dst
		case "projects":
			cfg.Session.ProjectsDir = projects
		case "class":
			cfg.Session.DefaultClass = class
		case "classes":
			cfg.Session.ClassNames = splitList(classes)
		case "autosave":
			cfg.Session.Autosave = autosave
		case "assist":
			cfg.Assist.Enabled = assist
		case "backend":
			cfg.Assist.Backend = backend
		case "url":
			cfg.Assist.URL = url
		case "model":
			cfg.Assist.Model = model
		case "log-level":
			cfg.Log.Level = logLevel
		case "log-format":
			cfg.Log.Format = logFormat
		}
	})
	if cfg.Assist.Backend == "llamacpp" && cfg.Assist.URL == config.Default().Assist.URL {
		cfg.Assist.URL = "http://localhost:8080"
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", writeConfig)
		return
	}

	app, err := imageannotator.NewWithConfig(cfg)
	if err != nil {
		log.Fatalf("usage: %s [-config file] [-src images -dst labels] [-addr host:port]: %v", filepath.Base(os.Args[0]), err)
	}
	logger := app.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Open(ctx); err != nil {
		logger.WithError(err).Warn("could not open configured directories")
	}
	if err := app.Serve(ctx); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists, or falls back to built-in defaults
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(path)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
