// Package main is the Mitsuke CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/cli"
	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/server"
	"github.com/aisight/mitsuke/internal/vocab"
	"github.com/aisight/mitsuke/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mitsuke/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so "mitsuke server" from the project dir picks up the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "status":
		runStatus()
	case "terms":
		runTerms()
	case "remember":
		runRemember()
	case "search":
		runSearch()
	case "version", "--version", "-v":
		fmt.Printf("mitsuke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the long-lived core: embedder, vocabulary, prompt store,
// and the mode controller driving the contextual detector.
type Components struct {
	Embedder   embedding.Embedder
	Vocab      *vocab.Manager
	Store      *promptstore.Store
	Controller *mode.Controller
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.TextModelPath,
		cfg.Embedding.ImageModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		if logger != nil {
			logger.Warn("onnx embedder unavailable, using mock embedder", zap.Error(err))
		}
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	vocabOpts := []vocab.Option{
		vocab.WithPrunePolicy(
			time.Duration(cfg.Vocabulary.PruneIntervalSeconds)*time.Second,
			time.Duration(cfg.Vocabulary.MaxAgeHours)*time.Hour,
			cfg.Vocabulary.MinUseCount,
		),
	}
	if debug && logger != nil {
		vocabOpts = append(vocabOpts, vocab.WithLogger(logger))
	}
	v, err := vocab.NewManager(cfg.Storage.VocabularyPath, cfg.Vocabulary.Capacity, cfg.Vocabulary.BaseTerms, vocabOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vocabulary: %w", err)
	}

	storeOpts := []promptstore.StoreOption{}
	if logger != nil {
		storeOpts = append(storeOpts, promptstore.WithLogger(logger))
	}
	store, err := promptstore.Open(
		cfg.Storage.PromptStorePath,
		cfg.Storage.MemoryIndexPath,
		cfg.Storage.NameIndexPath,
		embedder,
		storeOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt store: %w", err)
	}

	ctrlOpts := []mode.ControllerOption{
		mode.WithSwitchBudget(time.Duration(cfg.Detection.SwitchBudgetMs) * time.Millisecond),
	}
	if logger != nil {
		ctrlOpts = append(ctrlOpts, mode.WithLogger(logger))
	}
	controller := mode.NewController(v, store, embedder, ctrlOpts...)

	return &Components{
		Embedder:   embedder,
		Vocab:      v,
		Store:      store,
		Controller: controller,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go components.Vocab.Start(runCtx)

	syncWatcher := promptstore.NewSyncWatcher(components.Store, logger)
	if err := syncWatcher.Start(runCtx); err != nil {
		logger.Warn("prompt store sync watcher unavailable", zap.Error(err))
	}

	srv := server.NewServer(components.Vocab, components.Controller, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	runCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	body, err := getJSON(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		os.Stdout.Write(body)
	case "text":
		var status struct {
			Mode           string `json:"mode"`
			BaseTerms      int    `json:"base_terms"`
			DynamicTerms   int    `json:"dynamic_terms"`
			Capacity       int    `json:"capacity"`
			Memories       int64  `json:"memories"`
			DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("mode:             %s\n", status.Mode)
		fmt.Printf("base_terms:       %d\n", status.BaseTerms)
		fmt.Printf("dynamic_terms:    %d / %d\n", status.DynamicTerms, status.Capacity)
		fmt.Printf("memories:         %d\n", status.Memories)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes: %d\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runTerms() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: mitsuke terms <add|list> [flags] [term ...]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("terms", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	source := fs.String("source", "scene-description", "term source: scene-description, location, or memory")
	places := fs.Bool("places", false, "treat arguments as place names and map them to candidate terms")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mitsuke terms add [flags] <term ...>")
			os.Exit(1)
		}
		req := map[string]interface{}{"source": *source}
		if *places {
			req["places"] = fs.Args()
			delete(req, "source")
		} else {
			req["terms"] = fs.Args()
		}
		body, err := postJSON(*serverURL+"/api/v1/terms", req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Add terms failed: %v\n", err)
			os.Exit(1)
		}
		var out struct {
			Inserted []string `json:"inserted"`
			Rejected []string `json:"rejected"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Inserted %d term(s)\n", len(out.Inserted))
		if len(out.Rejected) > 0 {
			fmt.Printf("Rejected (capacity): %s\n", strings.Join(out.Rejected, ", "))
		}
	case "list":
		body, err := getJSON(*serverURL + "/api/v1/terms")
		if err != nil {
			fmt.Fprintf(os.Stderr, "List terms failed: %v\n", err)
			os.Exit(1)
		}
		var out struct {
			Terms    []string `json:"terms"`
			Base     int      `json:"base"`
			Dynamic  int      `json:"dynamic"`
			Capacity int      `json:"capacity"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
		format, err := cli.ParseOutputFormat(*outputFormat)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := cli.WriteTerms(os.Stdout, out.Terms, out.Base, out.Dynamic, out.Capacity, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown terms subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// parseBox parses "x,y,width,height".
func parseBox(s string) (models.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BoundingBox{}, fmt.Errorf("box must be x,y,width,height")
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.BoundingBox{}, fmt.Errorf("invalid box component %q", p)
		}
		vals[i] = n
	}
	return models.BoundingBox{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func runRemember() {
	fs := flag.NewFlagSet("remember", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	name := fs.String("name", "", "object name (required)")
	imagePath := fs.String("image", "", "raw frame file, packed BGR24 (required)")
	width := fs.Int("width", 0, "frame width in pixels (required)")
	height := fs.Int("height", 0, "frame height in pixels (required)")
	box := fs.String("box", "", "object region as x,y,width,height (required)")
	classID := fs.Int("class", 0, "detector class id")
	_ = fs.Parse(os.Args[2:])

	if *name == "" || *imagePath == "" || *width <= 0 || *height <= 0 || *box == "" {
		fmt.Println("Usage: mitsuke remember --name <name> --image <file> --width <w> --height <h> --box x,y,w,h [--class id]")
		os.Exit(1)
	}
	bbox, err := parseBox(*box)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	data, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read frame: %v\n", err)
		os.Exit(1)
	}

	body, err := postJSON(*serverURL+"/api/v1/memories", map[string]interface{}{
		"object_name":  *name,
		"class_id":     *classID,
		"bounding_box": bbox,
		"frame": map[string]interface{}{
			"width":  *width,
			"height": *height,
			"data":   data,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Remember failed: %v\n", err)
		os.Exit(1)
	}
	var out struct {
		MemoryID string `json:"memory_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Remembered %q as %s\n", *name, out.MemoryID)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mitsuke search [flags] <object name>")
		os.Exit(1)
	}
	name := strings.TrimSpace(strings.Join(fs.Args(), " "))

	body, err := getJSON(*serverURL + "/api/v1/memories?name=" + url.QueryEscape(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	var found struct {
		MemoryIDs []string `json:"memory_ids"`
	}
	if err := json.Unmarshal(body, &found); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}

	records := make([]models.VisualPromptRecord, 0, len(found.MemoryIDs))
	for _, id := range found.MemoryIDs {
		b, err := getJSON(*serverURL + "/api/v1/memories/" + id)
		if err != nil {
			continue
		}
		var r models.VisualPromptRecord
		if err := json.Unmarshal(b, &r); err != nil {
			continue
		}
		records = append(records, r)
	}

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cli.WriteMemories(os.Stdout, records, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func postJSON(url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusConflict {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return b, nil
}

func getJSON(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return b, nil
}

func printUsage() {
	fmt.Println(`mitsuke - Adaptive multi-mode detection core

Usage:
  mitsuke server [flags]             Start the HTTP server
  mitsuke status [flags]             Show vocabulary/mode/store status
  mitsuke terms <add|list> [flags]   Manage adaptive vocabulary terms
  mitsuke remember [flags]           Save a visual prompt from a frame file
  mitsuke search [flags] <name>      Find remembered objects by name
  mitsuke version                    Show version
  mitsuke help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mitsuke/config.yaml)
  --debug            Enable debug logging

Terms Flags:
  --server string    Server URL (default: http://localhost:8090)
  --source string    Term source: scene-description, location, or memory
  --places           Treat arguments as place names (cafe, station, ...) and map them

Remember Flags:
  --server string    Server URL (default: http://localhost:8090)
  --name string      Object name
  --image string     Raw frame file, packed BGR24
  --width int        Frame width in pixels
  --height int       Frame height in pixels
  --box string       Object region as x,y,width,height
  --class int        Detector class id

Examples:
  mitsuke server
  mitsuke terms add "fire extinguisher" whiteboard
  mitsuke terms add --places cafe station
  mitsuke terms list
  mitsuke remember --name wallet --image frame.bgr --width 640 --height 480 --box 120,200,80,60
  mitsuke search wallet
  mitsuke status --output json`)
}
