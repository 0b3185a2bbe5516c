package commands

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// These operate on the persisted gate state. A running service keeps its own
// copy in memory, so use the admin API against a live instance.
var (
	killSwitchCmd = &cobra.Command{
		Use:   "killswitch",
		Short: "Inspect or change the persisted kill switch",
	}

	killSwitchStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the kill switch state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			s := newGate(ctx, cfg, st, nil).Status()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"active":              s.KillSwitchActive,
				"reason":              s.KillSwitchReason,
				"activatedAt":         s.KillSwitchAt,
				"consecutiveFailures": s.ConsecutiveFailures,
				"dailyLoss":           s.DailyLoss,
			})
		},
	}

	killSwitchResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Clear the kill switch and the consecutive failure count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			gate := newGate(ctx, cfg, st, nil)
			gate.ResetKillSwitch(ctx)
			if gate.Status().PersistPending {
				return errors.New("kill switch reset but state could not be persisted")
			}
			log.Info().Msg("kill switch reset")
			return nil
		},
	}

	killSwitchActivateCmd = &cobra.Command{
		Use:   "activate [reason]",
		Short: "Halt trading until the kill switch is reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := strings.Join(args, " ")
			if reason == "" {
				reason = "manual activation"
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			gate := newGate(ctx, cfg, st, nil)
			gate.ActivateKillSwitch(ctx, reason)
			if gate.Status().PersistPending {
				return errors.New("kill switch activated but state could not be persisted")
			}
			return nil
		},
	}
)

func init() {
	killSwitchCmd.AddCommand(killSwitchStatusCmd)
	killSwitchCmd.AddCommand(killSwitchResetCmd)
	killSwitchCmd.AddCommand(killSwitchActivateCmd)
}
