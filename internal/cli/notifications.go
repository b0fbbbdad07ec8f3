package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Inspect and drive alert notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE:  runNotificationsList,
}

var notificationsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Retry pending notifications that are due",
	RunE:  runNotificationsProcess,
}

var notificationsResendCmd = &cobra.Command{
	Use:   "resend <notification-id>",
	Short: "Resend a failed notification",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationsResend,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationsRead,
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd, notificationsProcessCmd, notificationsResendCmd, notificationsReadCmd)

	notificationsListCmd.Flags().String("alert", "", "Filter by alert")
	notificationsListCmd.Flags().StringP("user", "u", "", "Filter by recipient")
	notificationsListCmd.Flags().StringP("status", "s", "", "Filter by status (PENDING, SENT, FAILED)")
	notificationsListCmd.Flags().StringP("channel", "c", "", "Filter by channel")
	notificationsListCmd.Flags().Bool("unread", false, "Only unread notifications")
	notificationsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of notifications")

	notificationsReadCmd.Flags().StringP("user", "u", "", "Reading user id")
	_ = notificationsReadCmd.MarkFlagRequired("user")
}

func runNotificationsList(cmd *cobra.Command, _ []string) error {
	alertID, _ := cmd.Flags().GetString("alert")
	user, _ := cmd.Flags().GetString("user")
	status, _ := cmd.Flags().GetString("status")
	channel, _ := cmd.Flags().GetString("channel")
	unread, _ := cmd.Flags().GetBool("unread")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.svc.ListNotifications(cmd.Context(), tenant, model.NotificationFilter{
		AlertID:     alertID,
		RecipientID: user,
		Status:      model.NotificationStatus(strings.ToUpper(status)),
		Channel:     model.Channel(strings.ToLower(channel)),
		UnreadOnly:  unread,
		Limit:       limit,
	})
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No notifications found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tALERT\tCHANNEL\tRECIPIENT\tEVENT\tSTATUS\tATTEMPTS\tREAD\tLAST ERROR\n")
	for _, n := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%t\t%s\n",
			n.ID, n.AlertID, n.Channel, n.RecipientID, n.Event, n.Status,
			n.Attempts, n.MaxAttempts, n.Read, n.Payload.LastError,
		)
	}
	w.Flush()

	return nil
}

func runNotificationsProcess(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.ProcessPending(cmd.Context(), tenant)
	if err != nil {
		return fmt.Errorf("process notifications: %w", err)
	}

	fmt.Printf("Processed %d notification(s): %d sent, %d failed, %d still pending\n",
		res.Processed, res.Sent, res.Failed, res.Pending)
	return nil
}

func runNotificationsResend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.Resend(cmd.Context(), tenant, args[0])
	if err != nil {
		return fmt.Errorf("resend notification: %w", err)
	}

	fmt.Printf("Notification %s is %s after %d attempt(s)\n", n.ID, n.Status, n.Attempts)
	return nil
}

func runNotificationsRead(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.MarkRead(cmd.Context(), tenant, args[0], user)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	fmt.Printf("Notification %s marked as read\n", n.ID)
	return nil
}
