package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/miethe/dealbrain/internal/logger"
	"github.com/miethe/dealbrain/registry"
	"github.com/miethe/dealbrain/rules"
)

// valuectl evaluates valuation rules against listings from JSON files.
//
// Usage:
//
//	valuectl -command evaluate -rules rules.json -listing listing.json
//	valuectl -command preview  -rules rules.json -rule rule.json -listings listings.json
func main() {
	var command string
	var rulesPath string
	var rulePath string
	var listingPath string
	var listingsPath string

	flag.StringVar(&command, "command", "evaluate", "Command: evaluate, preview")
	flag.StringVar(&rulesPath, "rules", "", "Path to ruleset JSON file (required)")
	flag.StringVar(&rulePath, "rule", "", "Path to rule definition JSON file (preview only)")
	flag.StringVar(&listingPath, "listing", "", "Path to listing JSON file (evaluate only)")
	flag.StringVar(&listingsPath, "listings", "", "Path to listings JSON array file (preview only)")
	flag.Parse()

	logger.SetLevelFromEnv("LOG_LEVEL", logger.LevelInfo)

	if rulesPath == "" {
		fatal("a ruleset file is required: use -rules")
	}

	engine, err := loadEngine(rulesPath)
	if err != nil {
		fatal("failed to load ruleset: %v", err)
	}

	ctx := context.Background()

	switch command {
	case "evaluate":
		if listingPath == "" {
			fatal("evaluate requires a listing file: use -listing")
		}
		var listing rules.Context
		if err := readJSON(listingPath, &listing); err != nil {
			fatal("failed to read listing: %v", err)
		}
		eval, err := engine.EvaluateListing(ctx, listing)
		if err != nil {
			fatal("evaluation failed: %v", err)
		}
		printJSON(eval)

	case "preview":
		if rulePath == "" || listingsPath == "" {
			fatal("preview requires -rule and -listings")
		}
		var def rules.RuleDefinition
		if err := readJSON(rulePath, &def); err != nil {
			fatal("failed to read rule definition: %v", err)
		}
		var listings []rules.Context
		if err := readJSON(listingsPath, &listings); err != nil {
			fatal("failed to read listings: %v", err)
		}
		result, err := engine.Preview(ctx, def, listings)
		if err != nil {
			fatal("preview failed: %v", err)
		}
		printJSON(result)

	default:
		fatal("unknown command: %s (use: evaluate, preview)", command)
	}
}

// rulesetFile is the on-disk shape consumed by valuectl: groups with inline
// rule definitions, loaded into a fresh in-memory store.
type rulesetFile struct {
	Groups []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Priority int    `json:"priority"`
		Rules    []struct {
			ID string `json:"id"`
			rules.RuleDefinition
		} `json:"rules"`
	} `json:"groups"`
}

func loadEngine(path string) (*rules.Engine, error) {
	var file rulesetFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}

	store := rules.NewMemoryStore()
	svc := rules.NewVersionService(store, registry.Default())

	ctx := context.Background()
	for _, g := range file.Groups {
		group := &rules.RuleGroup{
			ID:       g.ID,
			Name:     g.Name,
			Priority: g.Priority,
			Active:   true,
		}
		if err := store.AddGroup(group); err != nil {
			return nil, err
		}
		for _, r := range g.Rules {
			if _, err := svc.Create(ctx, g.ID, r.RuleDefinition, "valuectl"); err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
		}
	}

	engine, err := rules.NewEngine(registry.Default(), store)
	if err != nil {
		return nil, err
	}
	svc.NotifyOnMutation(engine)
	return engine, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("failed to encode output: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "valuectl: "+format+"\n", args...)
	os.Exit(1)
}
