// Package main is the entry point for the epublic-mcp server.
// It wires together all dependencies and starts the MCP server.
//
// This file is intentionally minimal - all business logic lives in internal/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/epublic/epublic-mcp/internal/epub"
	"github.com/epublic/epublic-mcp/internal/index"
	"github.com/epublic/epublic-mcp/internal/library"
	mcphandlers "github.com/epublic/epublic-mcp/internal/mcp"
	"github.com/epublic/epublic-mcp/internal/search"
	"github.com/epublic/epublic-mcp/internal/textcache"
)

const (
	serverName    = "epublic-library"
	serverVersion = "v0.1.0"

	indexPathEnv = "EPUBLIC_INDEX_PATH"
)

// setupLogger creates an slog logger that writes to a debug file in the cache
// directory. MCP stdio servers own stdout, so nothing may log there.
func setupLogger(cacheDir string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create cache dir: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(cacheDir, fmt.Sprintf("debug-%s.txt", date))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return slog.New(handler), file, nil
}

func main() {
	// IMPORTANT: MCP stdio servers must log to stderr only (for standard log package).
	log.SetOutput(os.Stderr)

	// A .env next to the binary is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	// --- 0. Parse flags (env vars fill the gaps) ---

	var libraryPaths []string
	flag.Func("library-path", "Library root directory (repeatable; default $EPUBLIC_LIBRARY_PATHS)",
		func(v string) error {
			libraryPaths = append(libraryPaths, v)
			return nil
		})
	cacheDir := flag.String("cache-dir", "",
		"Directory for the metadata cache, index and log files (default: XDG cache dir)")
	indexPath := flag.String("index-path", "",
		"Path of the full-text index file (default $EPUBLIC_INDEX_PATH, else <cache-dir>/index.sqlite)")
	rebuildIndex := flag.Bool("rebuild-index", false,
		"Force a full-text index rebuild on every search (also $EPUBLIC_REBUILD_INDEX=1)")
	fuzzyMetadata := flag.Bool("fuzzy-metadata", true,
		"Enable fuzzy (typo-tolerant) matching for metadata search")
	textCacheSize := flag.Int("text-cache-size", textcache.DefaultCapacity,
		"Number of parsed book bodies kept in memory")
	flag.Parse()

	if *cacheDir == "" {
		*cacheDir = filepath.Join(xdg.CacheHome, serverName)
	}
	if *indexPath == "" {
		*indexPath = os.Getenv(indexPathEnv)
	}
	if *indexPath == "" {
		*indexPath = filepath.Join(*cacheDir, "index.sqlite")
	}
	forceRebuild := *rebuildIndex || os.Getenv(index.RebuildEnv) == "1"

	// --- 1. Setup file-based debug logger ---

	logger, logFile, err := setupLogger(*cacheDir)
	if err != nil {
		log.Printf("Warning: failed to setup file logger: %v", err)
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	} else {
		defer logFile.Close()
	}

	logger.Info("server starting",
		"name", serverName,
		"version", serverVersion,
		"cache_dir", *cacheDir,
		"index_path", *indexPath,
		"rebuild_index", forceRebuild,
	)

	// --- 2. Create all dependencies ---

	// Extractor: parses EPUB containers into metadata and body text.
	extractor := epub.NewParser()

	// Store + Library: persisted metadata cache and the in-memory snapshot.
	store := library.NewStore(filepath.Join(*cacheDir, "metadata.json"), extractor, logger)
	lib := library.New(store, logger)

	// Text cache: bounds memory spent on parsed book bodies.
	texts, err := textcache.New(*textCacheSize)
	if err != nil {
		logger.Error("failed to create text cache", "error", err)
		log.Fatalf("Failed to create text cache: %v", err)
	}

	// Index: persistent paragraph-level full-text index.
	ftsIndex := index.New(*indexPath, forceRebuild, logger)
	defer ftsIndex.Close()

	// Matcher: fuzzy capability resolved once here, injected everywhere.
	matcher := search.NewMatcher(*fuzzyMetadata, search.DefaultFuzzyThreshold)

	// --- 3. Load the library ---

	// Serve from the blind cache read when possible, then always re-verify
	// against disk in the background. That bounds metadata staleness to one
	// process lifetime while keeping startup fast.
	roots := library.NormalizeRoots(libraryPaths)
	fromCache := lib.Init(context.Background(), roots)
	logger.Info("library loaded", "books", lib.Len(), "from_cache", fromCache)
	lib.RefreshAsync(roots)

	// --- 4. Create and configure the MCP server ---

	handlers := mcphandlers.NewHandlers(lib, ftsIndex, texts, extractor, matcher, logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, &mcp.ServerOptions{
		Instructions: "Use list_books/search_books for library metadata and find_topic for attributed full-text excerpts on a topic.",
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_books",
		Description: "List available books with optional pagination",
	}, handlers.ListBooks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_books",
		Description: "Search book metadata by title, author, or publication year",
	}, handlers.SearchBooks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_topic",
		Description: "Find advice or content on a specific topic with full attribution (filters can be combined)",
	}, handlers.FindTopic)

	logger.Info("server ready, waiting for requests")

	// --- 5. Run the server ---

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Error("server error", "error", err)
		log.Fatal(err)
	}
}
