package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/totp"
)

type totpOptions struct {
	copy bool
}

func newTOTPCommand(a *app) *cobra.Command {
	opts := &totpOptions{}

	cmd := &cobra.Command{
		Use:   "totp <title|id>",
		Short: "Show the current TOTP code of an entry",
		Example: `  entr totp github
  entr totp github --copy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.unlock()
			if err != nil {
				return err
			}
			defer done()

			e, err := s.Graph().FindEntry(args[0])
			if err != nil {
				return err
			}
			code, remaining, err := s.TOTP(e.ID)
			if err != nil {
				return err
			}
			if opts.copy {
				return a.copySecret(cmd, code, "code")
			}
			return writeOutput(cmd.OutOrStdout(), "%s (%s remaining)\n", code, remaining.Round(time.Second))
		},
	}

	cmd.Flags().BoolVarP(&opts.copy, "copy", "c", false, "copy the code to the clipboard")

	return cmd
}

type otpAddOptions struct {
	algorithm string
	digits    int
	period    int
}

func newOTPCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Manage OTP secrets",
	}
	cmd.AddCommand(newOTPAddCommand(a))
	return cmd
}

func newOTPAddCommand(a *app) *cobra.Command {
	opts := &otpAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <title|id>",
		Short: "Attach a TOTP secret to an entry",
		Long: `Attach a TOTP secret to an entry, replacing any existing one.

The base32 secret shown by the service during enrolment is prompted for
and stored encrypted. Defaults for algorithm, digits and period come from
the config file.

Example:
  entr otp add github
  entr otp add bank --digits 8 --algorithm sha256`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOTPAdd(cmd, a, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.algorithm, "algorithm", "", "HMAC algorithm (sha1|sha256|sha512)")
	cmd.Flags().IntVar(&opts.digits, "digits", 0, "code length, 4-10")
	cmd.Flags().IntVar(&opts.period, "period", 0, "code period in seconds, 5-300")

	return cmd
}

func runOTPAdd(cmd *cobra.Command, a *app, ref string, opts *otpAddOptions) error {
	algName := opts.algorithm
	if algName == "" {
		algName = a.cfg.TOTP.DefaultAlgorithm
	}
	alg, err := totp.ParseAlgorithm(algName)
	if err != nil {
		return err
	}
	digits := opts.digits
	if digits == 0 {
		digits = a.cfg.TOTP.DefaultDigits
	}
	period := opts.period
	if period == 0 {
		period = a.cfg.TOTP.DefaultPeriod
	}

	s, done, err := a.unlock()
	if err != nil {
		return err
	}
	defer done()

	e, err := s.Graph().FindEntry(ref)
	if err != nil {
		return err
	}

	encoded, err := a.readPassword("Base32 secret: ")
	if err != nil {
		return err
	}
	secret, err := totp.ParseBase32Secret(string(encoded))
	zero(encoded)
	if err != nil {
		return err
	}

	if _, err := s.AddOTP(e.ID, secret, alg, digits, period); err != nil {
		return fmt.Errorf("failed to add OTP secret: %w", err)
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), "OTP secret added to '%s' (%s, %d digits, %ds)\n", e.Title, alg, digits, period)
}
