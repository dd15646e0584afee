package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/graph"
	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/resolve"
	"github.com/vselutin/lineage/internal/storage"
)

// NewWorkflowCmd создаёт группу команд управления планами.
func NewWorkflowCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage plans and composite plans",
	}

	cmd.AddCommand(
		newWorkflowLsCmd(projectFn, outputFn),
		newWorkflowShowCmd(projectFn, outputFn),
		newWorkflowExecuteCmd(projectFn, outputFn),
		newWorkflowIterateCmd(projectFn, outputFn),
		newWorkflowComposeCmd(projectFn, outputFn),
		newWorkflowEditCmd(projectFn, outputFn),
		newWorkflowExportCmd(projectFn, outputFn),
		newWorkflowRmCmd(projectFn, outputFn),
	)

	return cmd
}

func newWorkflowLsCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			plans, err := p.Plans.List(ctx, all)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "KIND", "ID", "CREATED", "ACTIVE"}
			rows := make([][]string, len(plans))
			for i, stored := range plans {
				createdAt := stored.Plan.CreatedAt
				if stored.Kind == storage.KindComposite {
					createdAt = stored.Composite.CreatedAt
				}
				rows[i] = []string{
					stored.Name(),
					string(stored.Kind),
					stored.ID().String(),
					createdAt.Format(time.RFC3339),
					strconv.FormatBool(stored.IsActive()),
				}
			}
			out.Print(headers, rows, plans)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include invalidated plan versions")

	return cmd
}

func newWorkflowShowCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show the full definition of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			if stored.Kind == storage.KindComposite {
				composite := stored.Composite
				out.Success(fmt.Sprintf("Composite plan %q (%s)", composite.Name, composite.ID))
				if composite.Description != "" {
					out.Success(composite.Description)
				}

				headers := []string{"CHILD", "KIND", "PLAN_ID"}
				rows := make([][]string, len(composite.Children))
				for i, child := range composite.Children {
					rows[i] = []string{child.Name, string(child.Kind), child.PlanID.String()}
				}
				out.Print(headers, rows, composite)

				for _, mapping := range composite.Mappings {
					line := fmt.Sprintf("Mapping %s -> %s", mapping.Name, strings.Join(mapping.Targets, ", "))
					if mapping.Default != "" {
						line += fmt.Sprintf(" (default %q)", mapping.Default)
					}
					out.Success(line)
				}
				for _, link := range composite.Links {
					out.Success(fmt.Sprintf("Link %s -> %s", link.Source, strings.Join(link.Sinks, ", ")))
				}
				return nil
			}

			plan := stored.Plan
			out.Success(fmt.Sprintf("Plan %q (%s)", plan.Name, plan.ID))
			if plan.Description != "" {
				out.Success(plan.Description)
			}
			out.Success("Command: " + plan.Command)

			headers := []string{"PARAMETER", "KIND", "POSITION", "PREFIX", "DEFAULT"}
			rows := make([][]string, len(plan.Parameters))
			for i, param := range plan.Parameters {
				rows[i] = []string{
					param.Name,
					string(param.Kind),
					strconv.Itoa(param.Position),
					param.Prefix,
					param.Default,
				}
			}
			out.Print(headers, rows, plan)
			return nil
		},
	}
}

// executionUnits строит батч юнитов для плана или группы с учётом
// override'ов. Вытесненные линками override'ы выводятся как заметки.
func executionUnits(ctx context.Context, p *project.Project, stored *storage.StoredPlan, overrides map[string]string, out *Output) ([]coordinator.Unit, error) {
	if stored.Kind == storage.KindComposite {
		flat, err := resolve.FlattenComposite(ctx, p.Plans, stored.Composite)
		if err != nil {
			return nil, err
		}
		res, err := resolve.Apply(flat, overrides)
		if err != nil {
			return nil, err
		}
		for _, shadow := range res.Shadowed {
			out.Success(fmt.Sprintf("Note: override %s=%q discarded, value linked from %s.",
				shadow.Path, shadow.Discarded, shadow.LinkSource))
		}
		return coordinator.UnitsFromComposite(flat, res), nil
	}

	values := make(map[string]string, len(overrides))
	for name, value := range overrides {
		if stored.Plan.Parameter(name) == nil {
			return nil, fmt.Errorf("plan %q has no parameter %q", stored.Plan.Name, name)
		}
		values[name] = value
	}
	return []coordinator.Unit{{Plan: stored.Plan, Values: values}}, nil
}

func newWorkflowExecuteCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		setFlags     []string
		dryRun       bool
		skipMetadata bool
		providerName string
		configFile   string
	)

	cmd := &cobra.Command{
		Use:   "execute NAME",
		Short: "Execute a plan or composite plan",
		Long: `Execute the active version of a plan. For composite plans the
children run in declared order, parameter links flow output values
into downstream inputs. --set overrides a parameter by name, a child
path ("child.param") or a group mapping name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			overrides, err := parseOverrides(setFlags)
			if err != nil {
				return err
			}
			config, err := loadProviderConfig(configFile)
			if err != nil {
				return err
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			units, err := executionUnits(ctx, p, stored, overrides, out)
			if err != nil {
				return err
			}

			if !dryRun {
				release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
				if err != nil {
					return err
				}
				defer release()
			}

			summary, err := p.Coordinator().Run(ctx, units, coordinator.Options{
				Provider:     providerName,
				Config:       config,
				DryRun:       dryRun,
				SkipMetadata: skipMetadata,
				Agent:        agentName,
			})
			if err != nil {
				return err
			}

			printSummary(out, summary)
			return summary.Err()
		},
	}

	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "Parameter override as path=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the execution plan without running anything")
	cmd.Flags().BoolVar(&skipMetadata, "skip-metadata", false, "Execute without recording new activities")
	cmd.Flags().StringVar(&providerName, "provider", "", "Execution backend (default local)")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML file with backend configuration")

	return cmd
}

func newWorkflowIterateCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		mappingFile  string
		setFlags     []string
		dryRun       bool
		skipMetadata bool
		providerName string
		configFile   string
	)

	cmd := &cobra.Command{
		Use:   "iterate NAME",
		Short: "Execute a plan over the cartesian product of parameter values",
		Long: `Execute a plan once per combination of values declared in the
mapping file (a YAML mapping of parameter path to value list). The
literal {iter_index} in any value is replaced with the combination
index. --set pins constant overrides across all combinations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			data, err := os.ReadFile(mappingFile)
			if err != nil {
				return fmt.Errorf("read mapping file: %w", err)
			}
			space, err := resolve.ParseMapping(data)
			if err != nil {
				return err
			}

			constants, err := parseOverrides(setFlags)
			if err != nil {
				return err
			}
			config, err := loadProviderConfig(configFile)
			if err != nil {
				return err
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			sets := space.Expand()
			out.Success(fmt.Sprintf("Iterating %q over %d combinations.", stored.Name(), len(sets)))

			// единый батч: зависимости внутри комбинации сдвигаются
			// на её базовый индекс, комбинации между собой независимы
			var units []coordinator.Unit
			for _, set := range sets {
				overrides := make(map[string]string, len(constants)+len(set))
				for name, value := range constants {
					overrides[name] = value
				}
				for name, value := range set {
					overrides[name] = value
				}

				batch, err := executionUnits(ctx, p, stored, overrides, out)
				if err != nil {
					return err
				}
				base := len(units)
				for i := range batch {
					for j := range batch[i].DependsOn {
						batch[i].DependsOn[j] += base
					}
				}
				units = append(units, batch...)
			}

			if !dryRun {
				release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
				if err != nil {
					return err
				}
				defer release()
			}

			summary, err := p.Coordinator().Run(ctx, units, coordinator.Options{
				Provider:     providerName,
				Config:       config,
				DryRun:       dryRun,
				SkipMetadata: skipMetadata,
				Agent:        agentName,
			})
			if err != nil {
				return err
			}

			printSummary(out, summary)
			return summary.Err()
		},
	}

	cmd.Flags().StringVar(&mappingFile, "mapping", "", "YAML file with parameter value lists (required)")
	cmd.MarkFlagRequired("mapping")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "Constant override as path=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the execution plan without running anything")
	cmd.Flags().BoolVar(&skipMetadata, "skip-metadata", false, "Execute without recording new activities")
	cmd.Flags().StringVar(&providerName, "provider", "", "Execution backend (default local)")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML file with backend configuration")

	return cmd
}

func newWorkflowComposeCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		description string
		keywords    []string
		mapFlags    []string
		defFlags    []string
		linkFlags   []string
	)

	cmd := &cobra.Command{
		Use:   "compose NAME CHILD...",
		Short: "Group existing plans into a composite plan",
		Long: `Create a composite plan referencing existing plans by name.
A child is "plan-name" or "alias=plan-name". --map declares a group
parameter ("name=child.param,child.param"), --default sets its
default, --link declares a data flow ("child.out=child.in,child.in").`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			name := args[0]
			now := time.Now().UTC()
			composite := &domain.CompositePlan{
				ID:          uuid.New(),
				Name:        name,
				Description: description,
				Keywords:    keywords,
				CreatedAt:   now,
			}

			for _, arg := range args[1:] {
				childName, planName, found := strings.Cut(arg, "=")
				if !found {
					planName = arg
					childName = arg
				}
				child, err := p.Plans.ByName(ctx, planName)
				if err != nil {
					return fmt.Errorf("child %q: %w", planName, err)
				}
				kind := domain.ChildPlan
				if child.Kind == storage.KindComposite {
					kind = domain.ChildComposite
				}
				composite.Children = append(composite.Children, domain.ChildRef{
					Name:   childName,
					Kind:   kind,
					PlanID: child.ID(),
				})
			}

			defaults, err := parseOverrides(defFlags)
			if err != nil {
				return err
			}
			for _, raw := range mapFlags {
				mappingName, targets, found := strings.Cut(raw, "=")
				if !found || mappingName == "" {
					return fmt.Errorf("invalid --map value %q: expected name=child.param,...", raw)
				}
				composite.Mappings = append(composite.Mappings, domain.ParameterMapping{
					Name:    mappingName,
					Default: defaults[mappingName],
					Targets: strings.Split(targets, ","),
				})
				delete(defaults, mappingName)
			}
			for mappingName := range defaults {
				return fmt.Errorf("--default %s: no such --map declared", mappingName)
			}
			for _, raw := range linkFlags {
				source, sinks, found := strings.Cut(raw, "=")
				if !found || source == "" {
					return fmt.Errorf("invalid --link value %q: expected child.out=child.in,...", raw)
				}
				composite.Links = append(composite.Links, domain.ParameterLink{
					Source: source,
					Sinks:  strings.Split(sinks, ","),
				})
			}

			if err := composite.Validate(); err != nil {
				return err
			}
			if err := graph.CheckAcyclic(ctx, p.Plans, composite); err != nil {
				return err
			}
			// разворачивание проверяет разрешимость маппингов и линков
			// до листовых параметров и типы концов линков
			if _, err := resolve.FlattenComposite(ctx, p.Plans, composite); err != nil {
				return err
			}

			release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
			if err != nil {
				return err
			}
			defer release()

			if err := p.Plans.StoreComposite(ctx, composite); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Composite plan %q created (%s).", composite.Name, composite.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Composite plan description")
	cmd.Flags().StringArrayVar(&keywords, "keyword", nil, "Keyword (repeatable)")
	cmd.Flags().StringArrayVar(&mapFlags, "map", nil, "Group parameter as name=child.param,... (repeatable)")
	cmd.Flags().StringArrayVar(&defFlags, "default", nil, "Default for a --map parameter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&linkFlags, "link", nil, "Data flow as child.out=child.in,... (repeatable)")

	return cmd
}

func newWorkflowEditCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		rename      string
		description string
		setDefaults []string
	)

	cmd := &cobra.Command{
		Use:   "edit NAME",
		Short: "Edit a plan by deriving a new version",
		Long: `Derive a new version of a plan with the given changes and
invalidate the current one. Recorded activities keep referencing the
version they ran against. For composite plans --set-default changes
the default of a group mapping.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			if rename == "" && description == "" && len(setDefaults) == 0 {
				return fmt.Errorf("nothing to change: specify --rename, --description or --set-default")
			}
			defaults, err := parseOverrides(setDefaults)
			if err != nil {
				return err
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
			if err != nil {
				return err
			}
			defer release()

			now := time.Now().UTC()
			if stored.Kind == storage.KindComposite {
				next := stored.Composite.Derive(now)
				if rename != "" {
					next.Name = rename
				}
				if description != "" {
					next.Description = description
				}
				for name, value := range defaults {
					found := false
					for i := range next.Mappings {
						if next.Mappings[i].Name == name {
							next.Mappings[i].Default = value
							found = true
							break
						}
					}
					if !found {
						return fmt.Errorf("composite plan %q has no mapping %q", next.Name, name)
					}
				}
				if err := next.Validate(); err != nil {
					return err
				}
				if err := graph.CheckAcyclic(ctx, p.Plans, next); err != nil {
					return err
				}
				if err := p.Plans.Invalidate(ctx, stored.ID(), now); err != nil {
					return err
				}
				if err := p.Plans.StoreComposite(ctx, next); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Composite plan %q updated, new version %s.", next.Name, next.ID))
				return nil
			}

			next := stored.Plan.Derive(now)
			if rename != "" {
				next.Name = rename
			}
			if description != "" {
				next.Description = description
			}
			for name, value := range defaults {
				param := next.Parameter(name)
				if param == nil {
					return fmt.Errorf("plan %q has no parameter %q", next.Name, name)
				}
				param.Default = value
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := p.Plans.Invalidate(ctx, stored.ID(), now); err != nil {
				return err
			}
			if err := p.Plans.StorePlan(ctx, next); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Plan %q updated, new version %s.", next.Name, next.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&rename, "rename", "", "New plan name")
	cmd.Flags().StringVar(&description, "description", "", "New plan description")
	cmd.Flags().StringArrayVar(&setDefaults, "set-default", nil, "New parameter default as name=value (repeatable)")

	return cmd
}

func newWorkflowExportCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Export the full definition of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			var definition any = stored.Plan
			if stored.Kind == storage.KindComposite {
				definition = stored.Composite
			}

			switch format {
			case "json":
				out.JSON(definition)
				return nil
			case "yaml":
				return out.YAML(definition)
			default:
				return fmt.Errorf("unknown format %q: expected yaml or json", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Export format: yaml or json")

	return cmd
}

func newWorkflowRmCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Invalidate a plan",
		Long: `Soft-delete a plan: it disappears from active listings and can
no longer be executed, but recorded activities keep resolving to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			stored, err := p.Plans.ByName(ctx, args[0])
			if err != nil {
				return err
			}

			release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
			if err != nil {
				return err
			}
			defer release()

			if err := p.Plans.Invalidate(ctx, stored.ID(), time.Now().UTC()); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Plan %q invalidated.", stored.Name()))
			return nil
		},
	}
}
