package alerting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"gopkg.in/yaml.v3"
)

// overridesFile is the on-disk layout of rules.file:
//
//	rules:
//	  failed-logins:
//	    enabled: false
//	  disk-space-low:
//	    cooldown_minutes: 120
type overridesFile struct {
	Rules map[string]config.RuleOverride `yaml:"rules"`
}

// LoadOverrides reads rule overrides from a YAML file.
func LoadOverrides(path string) (map[string]config.RuleOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	if file.Rules == nil {
		file.Rules = map[string]config.RuleOverride{}
	}
	return file.Rules, nil
}

// ApplyOverrides applies every override it can. An override is validated
// as a whole before any field changes, so unknown rule ids and bad values
// are logged and skipped without partial effect; the number applied is
// returned.
func ApplyOverrides(e *Evaluator, overrides map[string]config.RuleOverride) int {
	applied := 0
	for id, o := range overrides {
		if err := checkOverride(e, id, o); err != nil {
			log.Warn().Err(err).Str("rule_id", id).Msg("rule override skipped")
			continue
		}
		if o.Enabled != nil {
			_ = e.SetEnabled(id, *o.Enabled)
		}
		if o.CooldownMinutes != nil {
			_ = e.SetCooldown(id, *o.CooldownMinutes)
		}
		applied++
	}
	return applied
}

func checkOverride(e *Evaluator, id string, o config.RuleOverride) error {
	if _, ok := e.Rule(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	if o.CooldownMinutes != nil && *o.CooldownMinutes < 0 {
		return fmt.Errorf("rule %s: negative cooldown", id)
	}
	return nil
}

// WatchOverrides reloads path whenever it changes and hands the result to
// apply. The directory is watched so editors that replace the file are
// seen. It blocks until ctx is done and the watcher is closed, returning
// ctx.Err().
func WatchOverrides(ctx context.Context, path string, apply func(map[string]config.RuleOverride)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create overrides watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve overrides path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch overrides dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Let the writer finish.
			time.Sleep(100 * time.Millisecond)

			overrides, err := LoadOverrides(abs)
			if err != nil {
				log.Warn().Err(err).Str("file", abs).Msg("reload rule overrides failed")
				continue
			}
			log.Info().Str("file", abs).Int("rules", len(overrides)).Msg("rule overrides reloaded")
			apply(overrides)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("overrides watcher error")
		}
	}
}
