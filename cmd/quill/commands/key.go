// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
)

func keyCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Manage signing keys",
		Description: `Signing keys live in .quill/keys. Rotation adds a new current key and
keeps the old public key, so earlier receipts still verify. Destroying a
key removes its private half for good.`,
		Subcommands: []*cli.Command{
			keyListCommand(env),
			keyRotateCommand(env),
			keyDestroyCommand(env),
			keyExportCommand(env),
		},
	}
}

type keyParams struct {
	projectParams
	cli.JSONOutput
}

func keyListCommand(env *environment) *cli.Command {
	var params keyParams
	return &cli.Command{
		Name:    "list",
		Summary: "List signing keys, oldest first",
		Usage:   "quill key list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("key list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill key list [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "key list")
			if err != nil {
				return err
			}
			defer opened.Close()

			keys, err := opened.keys.List()
			if err != nil {
				return cli.Internal("%w", err)
			}
			if done, err := params.EmitJSON(env.stdout, keys); done {
				return err
			}
			tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tCREATED\tSTATE")
			for _, info := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.PublicKey.KeyID, formatTime(info.CreatedAt), keyState(info))
			}
			return tw.Flush()
		},
	}
}

func keyState(info keyring.Info) string {
	state := "verify-only"
	if info.HasPrivate {
		state = "signing"
		if info.Encrypted {
			state += ", encrypted"
		}
	}
	if info.Current {
		state = "current, " + state
	}
	return state
}

func keyRotateCommand(env *environment) *cli.Command {
	var params keyParams
	return &cli.Command{
		Name:    "rotate",
		Summary: "Generate a new current signing key",
		Usage:   "quill key rotate [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("key rotate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill key rotate [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "key rotate")
			if err != nil {
				return err
			}
			defer opened.Close()

			public, previous, err := opened.keys.Rotate()
			if err != nil {
				return cli.Internal("rotating signing key: %w", err)
			}
			if err := opened.audit(ctx, auditchain.ActionKeyRotated, public.KeyID, digest.SumKey(public.Key)); err != nil {
				return err
			}
			result := map[string]string{"key_id": public.KeyID, "previous_key_id": previous}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			if previous == "" {
				fmt.Fprintf(env.stdout, "current key is now %s\n", public.KeyID)
				return nil
			}
			fmt.Fprintf(env.stdout, "current key is now %s (was %s)\n", public.KeyID, previous)
			return nil
		},
	}
}

func keyDestroyCommand(env *environment) *cli.Command {
	var params struct {
		keyParams
		Yes bool `json:"yes" flag:"yes,y" desc:"confirm destroying the private key"`
	}
	return &cli.Command{
		Name:    "destroy",
		Summary: "Destroy a private signing key",
		Description: `Delete a key's private half. Its public key stays, so receipts it
signed still verify, but it can sign nothing more. Destroying the
current key leaves the project without one until "quill key rotate".`,
		Usage: "quill key destroy <key-id> --yes",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("key destroy", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill key destroy <key-id> --yes"); err != nil {
				return err
			}
			if !params.Yes {
				return cli.Validation("destroying %s cannot be undone; pass --yes to confirm", args[0])
			}
			opened, err := env.openProject(params.projectParams, "key destroy")
			if err != nil {
				return err
			}
			defer opened.Close()

			public, err := opened.keys.PublicKey(args[0])
			if err != nil {
				return storeError(err)
			}
			if err := opened.keys.Destroy(public.KeyID); err != nil {
				return storeError(err)
			}
			if err := opened.audit(ctx, auditchain.ActionKeyDestroyed, public.KeyID, digest.SumKey(public.Key)); err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.stdout, map[string]string{"destroyed": public.KeyID}); done {
				return err
			}
			fmt.Fprintf(env.stdout, "destroyed private key %s\n", public.KeyID)
			return nil
		},
	}
}

type exportedKey struct {
	keyring.PublicKey
	Fingerprint string `json:"fingerprint"`
}

func keyExportCommand(env *environment) *cli.Command {
	var params keyParams
	return &cli.Command{
		Name:    "export",
		Summary: "Print a public key for out-of-band trust",
		Description: `Print a public key (default: the current key). The key id can be
given to "quill verify --trusted-key" on another machine.`,
		Usage: "quill key export [key-id] [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("key export", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Validation("usage: quill key export [key-id]")
			}
			opened, err := env.openProject(params.projectParams, "key export")
			if err != nil {
				return err
			}
			defer opened.Close()

			var public keyring.PublicKey
			if len(args) == 1 {
				public, err = opened.keys.PublicKey(args[0])
			} else {
				public, err = opened.keys.Current()
			}
			if err != nil {
				return storeError(err)
			}
			exported := exportedKey{PublicKey: public, Fingerprint: digest.SumKey(public.Key).String()}
			if done, err := params.EmitJSON(env.stdout, exported); done {
				return err
			}
			fmt.Fprintf(env.stdout, "%s %s %s\n", public.Algorithm, base64.StdEncoding.EncodeToString(public.Key), public.KeyID)
			return nil
		},
	}
}
