// Package listctl drives a list engine from the command line: one-shot
// edits against a store service, or a watch mode that follows the list
// as other writers change it.
package listctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/engine"
	entrypoint "github.com/louisbranch/daylists/internal/platform/cmd"
	"github.com/louisbranch/daylists/internal/storage/boltcache"
	"github.com/louisbranch/daylists/internal/storage/httpkv"
)

const closeTimeout = 3 * time.Second

// Config holds listctl command configuration.
type Config struct {
	StoreURL  string `env:"DAYLISTS_STORE_URL" envDefault:"http://localhost:8080"`
	CachePath string `env:"DAYLISTS_CACHE_PATH" envDefault:"daylists-cache.db"`
	Owner     string `env:"DAYLISTS_OWNER"`
	Kind      string `env:"DAYLISTS_KIND" envDefault:"shopping"`
	Day       string `env:"DAYLISTS_DAY"`
}

// ParseConfig parses environment and flags into a Config, leaving the
// remaining positional arguments on the flag set.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.StoreURL, "store", cfg.StoreURL, "Base URL of the store service")
	fs.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "Path to the local fallback cache file")
	fs.StringVar(&cfg.Owner, "owner", cfg.Owner, "List owner")
	fs.StringVar(&cfg.Kind, "kind", cfg.Kind, "List kind (shopping or planner)")
	fs.StringVar(&cfg.Day, "day", cfg.Day, "Day key (YYYY-MM-DD, defaults to today)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Day == "" {
		cfg.Day = time.Now().UTC().Format("2006-01-02")
	}
	return cfg, nil
}

// List returns the list identity the config addresses.
func (c Config) List() changelog.ListID {
	return changelog.ListID{Owner: c.Owner, Kind: changelog.Kind(c.Kind), Day: c.Day}
}

// Run executes one listctl command.
func Run(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("a command is required: show, add, remove, check, uncheck, complete, uncomplete, move, reorder, watch")
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceListctl, func(ctx context.Context) error {
		list := cfg.List()
		if err := list.Validate(); err != nil {
			return err
		}

		store, err := httpkv.New(cfg.StoreURL)
		if err != nil {
			return err
		}
		cache, err := boltcache.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				log.Printf("close cache: %v", err)
			}
		}()

		renderer := engine.RendererFunc(func(entities []changelog.Entity, change engine.Change) {
			fmt.Fprint(out, FormatEntities(entities))
		})

		eng, err := engine.New(engine.Config{
			List:     list,
			Store:    store,
			Fallback: cache,
			Renderer: renderer,
		})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := eng.Close(closeCtx); err != nil {
				log.Printf("close engine: %v", err)
			}
		}()

		if err := eng.Load(ctx); err != nil {
			return err
		}
		if eng.Status() != engine.StatusOK {
			fmt.Fprintf(out, "sync status: %s\n", eng.Status())
		}

		command, rest := args[0], args[1:]
		if command == "show" {
			return nil
		}
		if command == "watch" {
			eng.Start(ctx)
			<-ctx.Done()
			return nil
		}

		evt, err := eventForCommand(command, rest)
		if err != nil {
			return err
		}
		if _, err := eng.Submit(ctx, evt); err != nil {
			return err
		}
		return nil
	})
}

func eventForCommand(command string, args []string) (changelog.Event, error) {
	switch command {
	case "add":
		if len(args) == 0 {
			return changelog.Event{}, fmt.Errorf("add requires text")
		}
		return changelog.Event{
			Op:   changelog.OpAdded,
			ID:   strconv.FormatInt(time.Now().UnixMilli(), 10),
			Text: strings.Join(args, " "),
		}, nil
	case "remove", "check", "uncheck", "complete", "uncomplete":
		if len(args) != 1 {
			return changelog.Event{}, fmt.Errorf("%s requires an entity id", command)
		}
		ops := map[string]changelog.Op{
			"remove":     changelog.OpRemoved,
			"check":      changelog.OpChecked,
			"uncheck":    changelog.OpUnchecked,
			"complete":   changelog.OpCompleted,
			"uncomplete": changelog.OpUncompleted,
		}
		return changelog.Event{Op: ops[command], ID: args[0]}, nil
	case "move":
		if len(args) != 2 {
			return changelog.Event{}, fmt.Errorf("move requires an entity id and a target index")
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return changelog.Event{}, fmt.Errorf("parse target index: %w", err)
		}
		return changelog.Event{Op: changelog.OpMoved, ID: args[0], Index: &index}, nil
	case "reorder":
		if len(args) != 1 {
			return changelog.Event{}, fmt.Errorf("reorder requires a comma-separated id sequence")
		}
		return changelog.Event{Op: changelog.OpReorder, Order: strings.Split(args[0], ",")}, nil
	default:
		return changelog.Event{}, fmt.Errorf("unknown command %q", command)
	}
}

// FormatEntities renders the projection as a plain text listing.
func FormatEntities(entities []changelog.Entity) string {
	if len(entities) == 0 {
		return "(empty list)\n"
	}
	var b strings.Builder
	for _, entity := range entities {
		mark := " "
		if entity.Checked || entity.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %s %s", mark, entity.ID, entity.Text)
		if entity.Quantity > 1 {
			fmt.Fprintf(&b, " (x%d)", entity.Quantity)
		}
		if entity.Minutes > 0 {
			fmt.Fprintf(&b, " (%dm)", entity.Minutes)
		}
		if entity.Enjoyment > 0 {
			fmt.Fprintf(&b, " enjoyment=%d", entity.Enjoyment)
		}
		b.WriteString("\n")
	}
	return b.String()
}
