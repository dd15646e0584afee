package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/project"
)

// NewActivityCmd создаёт группу команд просмотра записей выполнений.
func NewActivityCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Inspect recorded executions",
	}

	cmd.AddCommand(
		newActivityLsCmd(projectFn, outputFn),
		newActivityShowCmd(projectFn, outputFn),
	)

	return cmd
}

// planNames лениво разрешает ID планов в имена для табличного вывода.
// Инвалидированные версии разрешаются наравне с активными.
type planNames struct {
	p     *project.Project
	cache map[uuid.UUID]string
}

func (n *planNames) name(ctx context.Context, id uuid.UUID) string {
	if cached, ok := n.cache[id]; ok {
		return cached
	}
	result := id.String()
	if plan, err := n.p.Plans.PlanByID(ctx, id); err == nil {
		result = plan.Name
	}
	n.cache[id] = result
	return result
}

func newActivityLsCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		path     string
		planName string
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List recorded executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			var activities []*domain.Activity
			switch {
			case path != "":
				activities, err = p.Activities.ListByPath(ctx, path)
			case planName != "":
				stored, lookupErr := p.Plans.ByName(ctx, planName)
				if lookupErr != nil {
					return lookupErr
				}
				activities, err = p.Activities.ListByPlan(ctx, stored.ID())
			default:
				activities, err = p.Activities.ListAll(ctx)
			}
			if err != nil {
				return err
			}

			names := &planNames{p: p, cache: make(map[uuid.UUID]string)}
			headers := []string{"ID", "PLAN", "STARTED", "DURATION", "GENERATED"}
			rows := make([][]string, len(activities))
			for i, activity := range activities {
				rows[i] = []string{
					activity.ID.String(),
					names.name(ctx, activity.PlanID),
					activity.StartedAt.Format(time.RFC3339),
					activity.EndedAt.Sub(activity.StartedAt).Round(time.Millisecond).String(),
					strconv.Itoa(len(activity.Generations)),
				}
			}
			out.Print(headers, rows, activities)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Only executions that used or generated the path")
	cmd.Flags().StringVar(&planName, "plan", "", "Only executions of the named plan")

	return cmd
}

func newActivityShowCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a recorded execution with its usages and generations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid activity id %q", args[0])
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			activity, err := p.Activities.GetByID(ctx, id)
			if err != nil {
				return err
			}

			names := &planNames{p: p, cache: make(map[uuid.UUID]string)}
			out.Success(fmt.Sprintf("Activity %s, plan %q, agent %q.",
				activity.ID, names.name(ctx, activity.PlanID), activity.Agent))
			out.Success(fmt.Sprintf("Started %s, took %s.",
				activity.StartedAt.Format(time.RFC3339),
				activity.EndedAt.Sub(activity.StartedAt).Round(time.Millisecond)))

			headers := []string{"ROLE", "DIRECTION", "PATH", "CHECKSUM"}
			rows := make([][]string, 0, len(activity.Usages)+len(activity.Generations))
			for _, usage := range activity.Usages {
				rows = append(rows, []string{usage.Role, "usage", usage.Entity.Path, shortHash(string(usage.Entity.Checksum))})
			}
			for _, generation := range activity.Generations {
				rows = append(rows, []string{generation.Role, "generation", generation.Entity.Path, shortHash(string(generation.Entity.Checksum))})
			}
			out.Print(headers, rows, activity)
			return nil
		},
	}
}
