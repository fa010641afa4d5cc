package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/inaiurai/shellmarket/internal/bonus"
	"github.com/inaiurai/shellmarket/internal/decay"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/metrics"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

type cli struct {
	st      store.Store
	out     io.Writer
	log     *slog.Logger
	ledger  *ledger.Ledger
	migrate func(ctx context.Context) error
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	if c.ledger == nil {
		c.ledger = ledger.New()
	}
	switch args[0] {
	case "migrate":
		return c.migrate(ctx)
	case "stats":
		return c.stats(ctx)
	case "decay":
		if len(args) < 2 {
			return fmt.Errorf("decay: want preview, apply or agent <id>")
		}
		svc := decay.NewService(c.st, c.ledger, metrics.Global(), c.log)
		switch args[1] {
		case "preview":
			sum, err := svc.Preview(ctx)
			if err != nil {
				return err
			}
			c.printSummary(sum)
			return nil
		case "apply":
			sum, err := svc.Apply(ctx)
			if err != nil {
				return err
			}
			c.printSummary(sum)
			return nil
		case "agent":
			if len(args) < 3 {
				return fmt.Errorf("decay agent: missing agent id")
			}
			id, err := uuid.Parse(args[2])
			if err != nil {
				return fmt.Errorf("decay agent: %w", err)
			}
			st, err := svc.AgentStatus(ctx, id)
			if err != nil {
				return err
			}
			c.printAgentStatus(st)
			return nil
		}
		return fmt.Errorf("decay: unknown subcommand %q", args[1])
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (c *cli) stats(ctx context.Context) error {
	var ps models.PlatformStats
	err := c.st.View(ctx, func(tx store.Tx) error {
		var err error
		ps, err = tx.PlatformStats(ctx)
		return err
	})
	if err != nil {
		return err
	}
	t := c.table([]string{"Fee pool", "Completed jobs", "Activity mining remaining"})
	t.Append([]string{
		strconv.FormatInt(ps.FeePool, 10),
		strconv.Itoa(ps.CompletedJobs),
		strconv.Itoa(bonus.ActivityMiningRemaining(ps.CompletedJobs)),
	})
	t.Render()
	return nil
}

func (c *cli) printSummary(sum *decay.Summary) {
	t := c.table([]string{"Agent", "Name", "Days inactive", "Previous", "New", "Decay"})
	for _, r := range sum.Results {
		t.Append([]string{
			r.AgentID.String(),
			r.AgentName,
			strconv.Itoa(r.DaysInactive),
			score(r.PreviousScore),
			score(r.NewScore),
			score(r.DecayApplied),
		})
	}
	t.SetFooter([]string{"", "", "", "", "Total", score(sum.TotalDecayApplied)})
	t.Render()

	verb := "would decay"
	if sum.Applied {
		verb = "decayed"
	}
	fmt.Fprintf(c.out, "%d of %d agents above the floor %s\n", sum.AgentsDecayed, sum.AgentsChecked, verb)
}

func (c *cli) printAgentStatus(st *decay.AgentStatus) {
	t := c.table([]string{"Agent", "Score", "Days inactive", "Pending decay", "Projected", "At floor"})
	t.Append([]string{
		st.AgentID.String(),
		score(st.CurrentScore),
		strconv.Itoa(st.DaysInactive),
		score(st.PendingDecay),
		score(st.ProjectedScore),
		strconv.FormatBool(st.AtFloor),
	})
	t.Render()
}

func (c *cli) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(c.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	return t
}

func score(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
