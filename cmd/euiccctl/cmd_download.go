package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/download"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/spf13/cobra"
)

var downloadOpts commands.DownloadOptions

var downloadCmd = &cobra.Command{
	Use:   "download [activation-code]",
	Short: "Download and install a profile from an SM-DP+ server",
	Long: `Download a profile using an activation code (LPA:1$smdp$matching-id)
or the --smdp and --matching-id flags. Without either, the activation code
is asked for interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&downloadOpts.SMDP, "smdp", "", "SM-DP+ address")
	f.StringVar(&downloadOpts.MatchingID, "matching-id", "", "matching id")
	f.StringVar(&downloadOpts.ConfirmationCode, "confirmation-code", "", "confirmation code from the carrier")
	f.StringVar(&downloadOpts.IMEI, "imei", "", "IMEI to report to the SM-DP+")
}

func runDownload(cmd *cobra.Command, args []string) error {
	opts := downloadOpts
	if len(args) == 1 {
		opts.ActivationCode = args[0]
	}
	if err := promptDownload(&opts); err != nil {
		return err
	}

	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	added, err := commands.Download(cmd.Context(), a.reg, slotID, opts, func(p lpa.Progress) {
		fmt.Fprintf(out, "  %s\n", download.Describe(p))
	})
	if err != nil {
		return withHint(err)
	}
	if len(added) == 0 {
		fmt.Fprintln(out, "Download finished.")
		return nil
	}
	for _, p := range added {
		fmt.Fprintf(out, "Installed %s (%s). Enable it with 'euiccctl enable %s'.\n",
			p.DisplayName(), profile.MaskICCID(p.ICCID), p.ICCID)
	}
	return nil
}

// promptDownload asks for whatever is missing when running on a terminal.
func promptDownload(opts *commands.DownloadOptions) error {
	interactive := isTerminal()
	if opts.ActivationCode == "" && opts.SMDP == "" {
		if !interactive {
			return errors.New("an activation code or --smdp is required")
		}
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Activation code").
					Placeholder("LPA:1$smdp.example.com$MATCHING-ID").
					Validate(func(s string) error {
						_, err := download.ParseActivationCode(s)
						return err
					}).
					Value(&opts.ActivationCode),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	if _, err := opts.Request(); !errors.Is(err, download.ErrConfirmationRequired) {
		return err
	}
	if !interactive {
		return fmt.Errorf("%w: pass --confirmation-code", download.ErrConfirmationRequired)
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Confirmation code").
				Description("Your carrier sent this together with the activation code.").
				EchoMode(huh.EchoModePassword).
				Value(&opts.ConfirmationCode),
		),
	).Run()
}
