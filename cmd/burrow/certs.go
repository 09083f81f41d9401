package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/pki"
	"github.com/spf13/cobra"
)

// passphraseEnv names the variable holding the CA key passphrase
const passphraseEnv = "BURROW_CA_PASSPHRASE"

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage the certificates of the peer connections",
	Long: `Manage the cluster CA and the node certificates the controller and the
satellites present to each other. The CA key is encrypted when
` + passphraseEnv + ` is set.`,
}

var certsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new cluster CA",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("ca-dir")
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(filepath.Join(dir, pki.CAKeyFile)); err == nil && !force {
			return fmt.Errorf("a CA already exists in %s (use --force to replace it)", dir)
		}

		ca, err := pki.NewCA(pki.DefaultRootKeySize)
		if err != nil {
			return err
		}
		if err := ca.Save(dir, os.Getenv(passphraseEnv)); err != nil {
			return err
		}
		fmt.Printf("✓ CA created in %s\n", dir)
		fmt.Printf("  Expires: %s\n", ca.Certificate().NotAfter.Format("2006-01-02"))
		return nil
	},
}

var certsIssueCmd = &cobra.Command{
	Use:   "issue NODE",
	Short: "Issue a node certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caDir, _ := cmd.Flags().GetString("ca-dir")
		out, _ := cmd.Flags().GetString("out")
		dnsNames, _ := cmd.Flags().GetStringSlice("dns")
		ipStrs, _ := cmd.Flags().GetStringSlice("ip")

		ips := make([]net.IP, 0, len(ipStrs))
		for _, s := range ipStrs {
			ip := net.ParseIP(s)
			if ip == nil {
				return fmt.Errorf("invalid IP address: %s", s)
			}
			ips = append(ips, ip)
		}
		if out == "" {
			out = args[0]
		}

		ca, err := pki.LoadCA(caDir, os.Getenv(passphraseEnv))
		if err != nil {
			return err
		}
		cert, err := ca.WriteNodeDir(out, args[0], dnsNames, ips)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Certificate for %s written to %s\n", args[0], out)
		fmt.Printf("  Expires: %s\n", cert.Leaf.NotAfter.Format("2006-01-02"))
		return nil
	},
}

func init() {
	certsCmd.PersistentFlags().String("ca-dir", "./burrow-ca", "Directory holding ca.crt and ca.key")
	certsInitCmd.Flags().Bool("force", false, "Replace an existing CA")
	certsIssueCmd.Flags().String("out", "", "Output directory (default: NODE)")
	certsIssueCmd.Flags().StringSlice("dns", nil, "DNS names of the node")
	certsIssueCmd.Flags().StringSlice("ip", nil, "IP addresses of the node")

	certsCmd.AddCommand(certsInitCmd)
	certsCmd.AddCommand(certsIssueCmd)
	rootCmd.AddCommand(certsCmd)
}
