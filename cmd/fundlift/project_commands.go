package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/fundlift/fundlift/client"
)

func projectCommands() *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Project browsing and transaction commands",
		Subcommands: []*cli.Command{
			projectListCommand(),
			projectCreateCommand(),
			projectContributeCommand(),
			projectWithdrawCommand(),
			projectRefundCommand(),
			projectContributionCommand(),
			projectRefreshCommand(),
		},
	}
}

func parseIDArg(c *cli.Context) (uint64, error) {
	if c.NArg() < 1 {
		return 0, fmt.Errorf("project id is required")
	}
	id, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", c.Args().Get(0))
	}
	return id, nil
}

func projectListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List projects with progress and eligibility",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each project (e.g. 'select(.goal_reached)')",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, cliLogger())
			projects, err := cl.ListProjects(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}

			if filter := c.String("filter"); filter != "" {
				return printFiltered(projects, filter)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(projects)
				fmt.Println(string(data))
				return nil
			}

			if len(projects) == 0 {
				fmt.Println("No projects found")
				return nil
			}
			for _, p := range projects {
				status := p.TimeRemaining
				if p.GoalReached {
					status = "funded · " + status
				}
				fmt.Printf("#%d %s\n", p.ID, p.Title)
				fmt.Printf("   %s / %s (%.1f%%) · %s\n", p.RaisedAmount, p.GoalAmount, p.ProgressPercent, status)
			}
			return nil
		},
	}
}

// printFiltered runs each project through a jq filter and prints the
// non-null results, one JSON value per line.
func printFiltered(projects []client.Project, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	for _, p := range projects {
		// Round-trip through JSON so gojq sees plain maps.
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		var input map[string]interface{}
		if err := json.Unmarshal(raw, &input); err != nil {
			return err
		}

		iter := code.Run(input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return fmt.Errorf("jq filter failed: %w", err)
			}
			if v == nil {
				continue
			}
			out, err := json.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
	}
	return nil
}

func projectCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a new crowdfunding project",
		ArgsUsage: "TITLE",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Project description",
			},
			&cli.StringFlag{
				Name:     "goal",
				Aliases:  []string{"g"},
				Usage:    "Funding goal in native currency (e.g. 10, 2.5)",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:    "days",
				Usage:   "Campaign duration in days",
				Value:   30,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("project title is required")
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			result, err := cl.CreateProject(c.Context, c.Args().Get(0), c.String("description"), c.String("goal"), c.Uint64("days"))
			if err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}

			printWorkflowResult(c, result, "Project created")
			return nil
		},
	}
}

func projectContributeCommand() *cli.Command {
	return &cli.Command{
		Name:      "contribute",
		Usage:     "Contribute to a project",
		ArgsUsage: "PROJECT_ID",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
			&cli.StringFlag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Contribution amount in native currency",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			id, err := parseIDArg(c)
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			result, err := cl.Contribute(c.Context, id, c.String("amount"))
			if err != nil {
				return fmt.Errorf("failed to contribute: %w", err)
			}

			printWorkflowResult(c, result, "Contribution confirmed")
			return nil
		},
	}
}

func projectWithdrawCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw",
		Usage:     "Withdraw raised funds from a funded project you created",
		ArgsUsage: "PROJECT_ID",
		Flags:     []cli.Flag{serverFlag(), jsonFlag()},
		Action: func(c *cli.Context) error {
			id, err := parseIDArg(c)
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			result, err := cl.Withdraw(c.Context, id)
			if err != nil {
				return fmt.Errorf("failed to withdraw: %w", err)
			}

			printWorkflowResult(c, result, "Funds withdrawn")
			return nil
		},
	}
}

func projectRefundCommand() *cli.Command {
	return &cli.Command{
		Name:      "refund",
		Usage:     "Reclaim your contribution from an expired project that missed its goal",
		ArgsUsage: "PROJECT_ID",
		Flags:     []cli.Flag{serverFlag(), jsonFlag()},
		Action: func(c *cli.Context) error {
			id, err := parseIDArg(c)
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			result, err := cl.Refund(c.Context, id)
			if err != nil {
				return fmt.Errorf("failed to refund: %w", err)
			}

			printWorkflowResult(c, result, "Refund confirmed")
			return nil
		},
	}
}

func projectContributionCommand() *cli.Command {
	return &cli.Command{
		Name:      "contribution",
		Usage:     "Show an address's total contribution to a project",
		ArgsUsage: "PROJECT_ID ADDRESS",
		Flags:     []cli.Flag{serverFlag(), jsonFlag()},
		Action: func(c *cli.Context) error {
			id, err := parseIDArg(c)
			if err != nil {
				return err
			}
			if c.NArg() < 2 {
				return fmt.Errorf("contributor address is required")
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			contribution, err := cl.GetContribution(c.Context, id, c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to get contribution: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(contribution)
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("%s contributed %s to project #%d\n", contribution.Address, contribution.Amount, contribution.ProjectID)
			return nil
		},
	}
}

func projectRefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Force the server to re-read projects from the chain",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, cliLogger())
			if err := cl.RefreshProjects(c.Context); err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}
			fmt.Println("✓ Snapshot refreshed")
			return nil
		},
	}
}

func printWorkflowResult(c *cli.Context, result *client.WorkflowResult, message string) {
	if c.Bool("json") {
		data, _ := json.Marshal(result)
		fmt.Println(string(data))
		return
	}
	fmt.Printf("✓ %s\n", message)
	fmt.Printf("  Tx: %s\n", result.TxHash)
	if result.RefreshFailed {
		fmt.Println("  Warning: view refresh failed, shown data may be stale")
	}
}
