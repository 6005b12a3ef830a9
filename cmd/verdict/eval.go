package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/rules/adapters"
	"github.com/moonwalker/verdict/pkg/rules/catalog"
	"github.com/moonwalker/verdict/pkg/rules/engine"
	"github.com/moonwalker/verdict/pkg/rules/resolve"
)

const (
	resolveNone     = "none"
	resolveDiscount = "discount"
	resolveFraud    = "fraud"
)

type evalOptions struct {
	*rootOptions

	facts       string
	factsFile   string
	context     string
	rulesFile   string
	actions     bool
	resolve     string
	orderAmount float64
	explain     bool
}

type evalOutput struct {
	Engine          string                  `json:"engine"`
	Events          []rules.Event           `json:"events"`
	Discount        *resolve.DiscountResult `json:"discount,omitempty"`
	Fraud           *resolve.Assessment     `json:"fraud,omitempty"`
	ActionResults   []action.Result         `json:"actionResults,omitempty"`
	Recorded        map[string]int          `json:"recorded,omitempty"`
	Explain         []*rules.EvalResult     `json:"explain,omitempty"`
	ExecutionTimeMs float64                 `json:"executionTimeMs"`
}

func newEvalCommand(root *rootOptions) *cobra.Command {
	opts := &evalOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "eval <ruleset>",
		Short: "Evaluate a rule-set against facts",
		Long: `Evaluate a rule-set against facts and print the matched events as JSON.

Actions run against in-memory ports, nothing leaves the process.

Example:
  verdict eval discount --facts '{"user-type":"premium","order-amount":150000}'
  verdict eval fraud-detection --facts-file tx.json --actions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.facts, "facts", "", "facts as a JSON object")
	cmd.Flags().StringVar(&opts.factsFile, "facts-file", "", "file holding the facts JSON object")
	cmd.Flags().StringVar(&opts.context, "context", "", "action context as a JSON object, defaults to the facts with user-*, order-* and transaction-* facts nested (order-amount as order.amount)")
	cmd.Flags().StringVar(&opts.rulesFile, "rules", "", "evaluate this rule-set file instead of the repo")
	cmd.Flags().BoolVar(&opts.actions, "actions", false, "dispatch the actions of the matched rules")
	cmd.Flags().StringVar(&opts.resolve, "resolve", "", "conflict resolution (discount|fraud|none), guessed from the rule-set name by default")
	cmd.Flags().Float64Var(&opts.orderAmount, "order-amount", 0, "order amount for discount resolution, defaults to the order-amount fact")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "report why each rule did or did not match")

	return cmd
}

func runEval(cmd *cobra.Command, opts *evalOptions, name string) error {
	facts, err := readFacts(opts.facts, opts.factsFile)
	if err != nil {
		return err
	}

	rec := adapters.NewRecorder()
	reg := engine.New(engine.WithDispatcher(action.New(action.WithPorts(rec.Ports()))))
	defer reg.Close()

	if opts.rulesFile != "" {
		data, err := os.ReadFile(opts.rulesFile)
		if err != nil {
			return err
		}
		if name, err = reg.ImportRules(opts.rulesFile, data); err != nil {
			return err
		}
	} else {
		b, err := openBackend(opts.cfg, opts.cfg.stream())
		if err != nil {
			return err
		}
		defer b.repo.Close()

		rs, err := b.repo.Get(name)
		if err != nil {
			return err
		}
		if err := reg.RegisterEngine(name, rs); err != nil {
			return err
		}
	}

	out := &evalOutput{Engine: name}
	if opts.actions {
		actx := factContext(facts)
		if opts.context != "" {
			actx = rules.NewContext([]byte(opts.context))
		}
		res, err := reg.ExecuteRulesWithActions(context.Background(), name, facts, actx)
		if err != nil {
			return err
		}
		out.Events = res.Events
		out.ActionResults = res.ActionResults
		out.ExecutionTimeMs = res.ExecutionTimeMs()
		out.Recorded = rec.Summary()
	} else {
		start := time.Now()
		if out.Events, err = reg.ExecuteRules(name, facts); err != nil {
			return err
		}
		out.ExecutionTimeMs = float64(time.Since(start)) / float64(time.Millisecond)
	}

	switch resolverFor(opts.resolve, name) {
	case resolveDiscount:
		amount := opts.orderAmount
		if amount == 0 {
			if v, ok := facts.Get("order-amount"); ok {
				amount, _ = v.Number()
			}
		}
		out.Discount = resolve.ResolveDiscount(out.Events, amount)
	case resolveFraud:
		out.Fraud = resolve.ResolveFraud(out.Events)
	}

	if opts.explain {
		if out.Explain, err = reg.Explain(name, facts); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readFacts(inline, file string) (rules.Facts, error) {
	data := []byte(inline)
	if file != "" {
		var err error
		if data, err = os.ReadFile(file); err != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("facts are required, use --facts or --facts-file")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid facts JSON: %w", err)
	}
	return rules.NewFacts(raw)
}

var contextEntities = []string{"user", "order", "transaction"}

// factContext builds the action context from flat facts. Facts named after
// an entity are also nested under it: "order-amount" as order.amount,
// "transaction-count-today" as transaction.countToday.
func factContext(facts rules.Facts) *rules.Context {
	actx := rules.NewContext(facts.Map())
	for _, key := range facts.Keys() {
		entity, field, ok := strings.Cut(key, "-")
		if !ok || field == "" || !slices.Contains(contextEntities, entity) {
			continue
		}
		v, _ := facts.Get(key)
		if err := actx.SetFact(entity+"."+camelCase(field), v.Interface()); err != nil {
			slog.Warn("fact left out of the action context", "fact", key, "err", err)
		}
	}
	return actx
}

func camelCase(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func resolverFor(flag, name string) string {
	if flag != "" {
		return flag
	}
	switch name {
	case catalog.Discount, catalog.ActionBased:
		return resolveDiscount
	case catalog.Fraud:
		return resolveFraud
	}
	return resolveNone
}
