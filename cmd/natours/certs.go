// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/tls"
	"github.com/natours/natours/internal/xdg"
)

// certsConfig holds configuration for the certs command.
type certsConfig struct {
	dir   string
	hosts []string
}

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	cfg := &certsConfig{}

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate development TLS certificates",
		Long: `Writes a server certificate and key for local HTTPS. The certificate is
signed by a development CA which is created on first use and reused after
that, so clients only need to trust root-ca.crt once.

Serve with the result using --tls-cert and --tls-key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCerts(cmd, cfg, time.Now())
		},
	}

	cmd.Flags().StringVar(&cfg.dir, "dir", xdg.CertsDir(), "directory to write certificates to")
	cmd.Flags().StringSliceVar(&cfg.hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS names and IPs the certificate is valid for")

	return cmd
}

func runCerts(cmd *cobra.Command, cfg *certsConfig, now time.Time) error {
	if err := xdg.EnsureDir(cfg.dir); err != nil {
		return err
	}

	caExists, err := xdg.Exists(filepath.Join(cfg.dir, tls.CAFile))
	if err != nil {
		return err
	}
	var ca *tls.CA
	if caExists {
		if ca, err = tls.LoadCA(cfg.dir); err != nil {
			return err
		}
	} else {
		if ca, err = tls.GenerateCA(now); err != nil {
			return err
		}
		cmd.Printf("Created CA %s\n", filepath.Join(cfg.dir, tls.CAFile))
	}

	server, err := tls.GenerateServerCert(ca, now, cfg.hosts...)
	if err != nil {
		return err
	}
	if err := tls.Save(cfg.dir, ca, server); err != nil {
		return oops.Code("CERTS_FAILED").With("dir", cfg.dir).Wrap(err)
	}

	certFile, keyFile := tls.ServerFiles(cfg.dir)
	cmd.Printf("Wrote %s and %s\n", certFile, keyFile)
	return nil
}
