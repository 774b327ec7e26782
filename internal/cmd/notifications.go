package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/observability"
	"github.com/shoplens/shoplens/internal/output"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notify"},
	Short:   "Manage the notification log",
	Long: `List, acknowledge, or clear notification events. Threshold
warnings, throttle errors, API errors, and plan changes all land here.`,
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notification events, newest first",
	RunE:  runNotificationsList,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ackNotification(cmd, args[0], "read")
	},
}

var notificationsDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Dismiss a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ackNotification(cmd, args[0], "dismiss")
	},
}

var notificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all notification events",
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		comps.Notifier.Clear()
		observability.CLILogger.Info("Notifications cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsDismissCmd)
	notificationsCmd.AddCommand(notificationsClearCmd)

	notificationsListCmd.Flags().Bool("unread", false, "Only unread events")
	notificationsListCmd.Flags().Bool("include-dismissed", false, "Include dismissed events")
	notificationsListCmd.Flags().String("type", "", "Filter by severity: info, warning, error, success")
	notificationsListCmd.Flags().String("topic", "", "Filter by topic (e.g. rate_limit_exceeded)")
	notificationsListCmd.Flags().Int("limit", 0, "Maximum events to list (0 = all)")
	notificationsListCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}

func runNotificationsList(cmd *cobra.Command, args []string) error {
	unreadOnly, err := cmd.Flags().GetBool("unread")
	if err != nil {
		return err
	}
	includeDismissed, err := cmd.Flags().GetBool("include-dismissed")
	if err != nil {
		return err
	}
	eventType, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	topic, err := cmd.Flags().GetString("topic")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer comps.Close()

	events := comps.Notifier.List(notify.Filter{
		Type:             core.EventType(strings.ToLower(strings.TrimSpace(eventType))),
		Topic:            core.EventTopic(strings.ToLower(strings.TrimSpace(topic))),
		UnreadOnly:       unreadOnly,
		IncludeDismissed: includeDismissed,
		Limit:            limit,
	})

	rendered, err := output.NewFormatter(format).FormatNotifications(events, comps.Notifier.UnreadCount())
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Println(rendered)
	}
	return nil
}

func ackNotification(cmd *cobra.Command, rawID, action string) error {
	comps, err := buildComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer comps.Close()

	id, err := resolveNotificationID(comps.Notifier, rawID)
	if err != nil {
		return err
	}

	var ok bool
	if action == "dismiss" {
		ok = comps.Notifier.Dismiss(id)
	} else {
		ok = comps.Notifier.MarkRead(id)
	}
	if !ok {
		return fmt.Errorf("notification %s not found", rawID)
	}

	observability.CLILogger.Info("Notification updated",
		zap.String("id", id),
		zap.String("action", action))
	return nil
}

// resolveNotificationID accepts a full event ID or an unambiguous prefix,
// matching what the list table displays.
func resolveNotificationID(notifier *notify.Notifier, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("notification id is required")
	}

	var match string
	for _, event := range notifier.List(notify.Filter{IncludeDismissed: true}) {
		if event.ID == raw {
			return event.ID, nil
		}
		if strings.HasPrefix(event.ID, raw) {
			if match != "" && match != event.ID {
				return "", fmt.Errorf("notification id prefix %q is ambiguous", raw)
			}
			match = event.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("notification %s not found", raw)
	}
	return match, nil
}
