package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talent-ops/intake-cli/internal/conflict"
	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/schema"
	"github.com/talent-ops/intake-cli/internal/workflow"
)

var (
	ingestText  string
	ingestAuto  bool
	ingestForce bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Reconcile candidate text into the table",
	Long: "Extracts fields from candidate text and walks the reconciliation workflow: " +
		"identity confirmation, duplicate resolution, schema decisions, conflict resolution, commit. " +
		"With --auto every decision is made automatically (newest duplicate wins, proposals are added, proposed values overwrite).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		texts, err := gatherInputs(args)
		if err != nil {
			return err
		}
		if len(texts) == 0 {
			return eris.New("no input: pass --text or at least one file")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if len(texts) == 1 && !ingestAuto {
			rec, err := runInteractive(ctx, e.Engine, texts[0])
			if err != nil {
				return err
			}
			return printRecord(rec)
		}

		if !ingestAuto {
			return eris.New("multiple inputs need --auto")
		}

		var (
			mu    sync.Mutex
			total model.TokenUsage
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrent)
		for _, text := range texts {
			g.Go(func() error {
				rec, usage, err := runAuto(gctx, e.Engine, text)
				if err != nil {
					return err
				}
				mu.Lock()
				total = total.Add(usage)
				mu.Unlock()
				zap.L().Info("ingested", zap.Int("record_id", rec.ID))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		zap.L().Info("batch complete",
			zap.Int("texts", len(texts)),
			zap.Int64("total_tokens", total.Total()))
		return nil
	},
}

func gatherInputs(args []string) ([]string, error) {
	var texts []string
	if ingestText != "" {
		texts = append(texts, ingestText)
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		texts = append(texts, string(data))
	}
	return texts, nil
}

// runAuto drives a session to commit without operator input: the extracted
// identity stands, the newest duplicate becomes the merge target, every
// proposal is added, and proposed values win conflicts. Returns the token
// usage of the run so the batch loop can account for the whole batch.
func runAuto(ctx context.Context, engine *workflow.Engine, text string) (*model.Record, model.TokenUsage, error) {
	sess, err := engine.BeginRun(ctx, text)
	if err != nil {
		return nil, model.TokenUsage{}, err
	}
	usage := sess.Usage

	identity := sess.Fields[engine.IdentityField()]
	if !model.Informative(identity) {
		engine.Sessions().Delete(sess.ID)
		return nil, usage, eris.New("auto ingest: extraction found no candidate name")
	}

	sess, err = engine.ConfirmIdentity(ctx, sess.ID, identity)
	if err != nil {
		return nil, usage, err
	}

	if sess.State == workflow.StateDuplicateFound {
		sess, err = engine.ChooseMergeTarget(ctx, sess.ID, sess.Duplicates[0].ID)
		if err != nil {
			return nil, usage, err
		}
	}

	if sess.State == workflow.StateSchemaPending {
		decisions := make(map[string]schema.Decision, len(sess.Proposals))
		for name := range sess.Proposals {
			decisions[name] = schema.Decision{Action: schema.ActionAdd}
		}
		sess, err = engine.ResolveSchema(ctx, sess.ID, decisions)
		if err != nil {
			return nil, usage, err
		}
	}

	if sess.State == workflow.StateConflictPending {
		for _, entry := range sess.Conflicts {
			sess, err = engine.ResolveConflict(ctx, sess.ID, entry.FieldName, conflict.ActionUpdate, "")
			if err != nil {
				return nil, usage, err
			}
		}
	}

	rec, warnings, err := engine.Commit(ctx, sess.ID, ingestForce)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return rec, usage, err
}

// runInteractive walks the operator through each decision on stdin.
func runInteractive(ctx context.Context, engine *workflow.Engine, text string) (*model.Record, error) {
	in := bufio.NewScanner(os.Stdin)

	sess, err := engine.BeginRun(ctx, text)
	if err != nil {
		return nil, err
	}

	fmt.Println("抽出結果:")
	printFields(sess.Fields)
	if len(sess.Proposals) > 0 {
		fmt.Println("新しい項目の提案:")
		printFields(sess.Proposals)
	}

	identity := prompt(in, fmt.Sprintf("%s [%s]: ", engine.IdentityField(), sess.Fields[engine.IdentityField()]))
	if identity == "" {
		identity = sess.Fields[engine.IdentityField()]
	}
	sess, err = engine.ConfirmIdentity(ctx, sess.ID, identity)
	if err != nil {
		return nil, err
	}

	if sess.State == workflow.StateDuplicateFound {
		fmt.Println("同名の既存レコード:")
		for _, d := range sess.Duplicates {
			fmt.Printf("  id=%d (%s)\n", d.ID, d.Timestamp)
		}
		choice := prompt(in, "マージ先のid (新規なら new): ")
		target := 0
		if choice != "new" && choice != "" {
			target, err = strconv.Atoi(choice)
			if err != nil {
				return nil, eris.Wrap(err, "parse merge target")
			}
		}
		sess, err = engine.ChooseMergeTarget(ctx, sess.ID, target)
		if err != nil {
			return nil, err
		}
	}

	if sess.State == workflow.StateSchemaPending {
		decisions := make(map[string]schema.Decision, len(sess.Proposals))
		names := make([]string, 0, len(sess.Proposals))
		for name := range sess.Proposals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d, err := promptSchemaDecision(in, name, sess.Proposals[name])
			if err != nil {
				return nil, err
			}
			decisions[name] = d
		}
		sess, err = engine.ResolveSchema(ctx, sess.ID, decisions)
		if err != nil {
			return nil, err
		}
	}

	if sess.State == workflow.StateConflictPending {
		for _, entry := range sess.Conflicts {
			action := prompt(in, fmt.Sprintf(
				"%s: 既存=%q 提案=%q [update/keep/merge]: ",
				entry.FieldName, entry.CurrentValue, entry.ProposedValue))
			if action == "" {
				action = string(conflict.ActionKeep)
			}
			sess, err = engine.ResolveConflict(ctx, sess.ID, entry.FieldName, conflict.Action(action), "")
			if err != nil {
				return nil, err
			}
		}
	}

	rec, warnings, err := engine.Commit(ctx, sess.ID, ingestForce)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return rec, err
}

func promptSchemaDecision(in *bufio.Scanner, name, value string) (schema.Decision, error) {
	answer := prompt(in, fmt.Sprintf("新項目 %s=%q [add/rename:<名前>/merge:<既存項目>/skip]: ", name, value))
	switch {
	case answer == "" || answer == "add":
		return schema.Decision{Action: schema.ActionAdd}, nil
	case answer == "skip":
		return schema.Decision{Action: schema.ActionSkip}, nil
	case strings.HasPrefix(answer, "rename:"):
		return schema.Decision{Action: schema.ActionRename, NewName: strings.TrimPrefix(answer, "rename:")}, nil
	case strings.HasPrefix(answer, "merge:"):
		return schema.Decision{Action: schema.ActionMerge, MergeInto: strings.TrimPrefix(answer, "merge:")}, nil
	default:
		return schema.Decision{}, eris.Errorf("unknown schema decision %q", answer)
	}
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}

func printFields(fields map[string]string) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %s\n", name, fields[name])
	}
}

func printRecord(rec *model.Record) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "candidate text (alternative to file arguments)")
	ingestCmd.Flags().BoolVar(&ingestAuto, "auto", false, "resolve every decision automatically")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "commit even with unresolved conflicts")
	rootCmd.AddCommand(ingestCmd)
}
