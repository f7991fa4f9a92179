package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-upload/internal/config"
	"github.com/tonimelisma/dropbox-upload/internal/uploader"
)

type uploadFlags struct {
	credentialFlags

	file        string
	dropboxPath string
	writeMode   string
	updateRev   string
}

func newUploadCmd() *cobra.Command {
	f := &uploadFlags{}

	cmd := &cobra.Command{
		Use:   "upload --file <path>",
		Short: "Upload a file to Dropbox",
		Long: `Upload a file to a Dropbox folder and print the revision of the stored file.

Write modes:
  add        fail if a file with the same name exists (default)
  overwrite  replace any existing file
  update     replace the file only if its revision is --update-rev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "local file to upload")
	cmd.Flags().StringVarP(&f.dropboxPath, "dropbox-path", "d", "", "destination folder in Dropbox (default: app root)")
	cmd.Flags().StringVar(&f.writeMode, "write-mode", "", "add, overwrite, or update")
	cmd.Flags().StringVar(&f.updateRev, "update-rev", "", "revision to replace when --write-mode=update")
	f.register(cmd)

	return cmd
}

// uploadJSONOutput is the JSON output schema for the upload command.
type uploadJSONOutput struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Rev     string `json:"rev"`
	Size    int64  `json:"size"`
	Chunked bool   `json:"chunked"`
}

func runUpload(cmd *cobra.Command, f *uploadFlags) error {
	cli := config.CLIOverrides{FilePath: f.file}
	f.apply(cmd, &cli)

	if cmd.Flags().Changed("dropbox-path") {
		cli.DropboxPath = &f.dropboxPath
	}

	if cmd.Flags().Changed("write-mode") {
		cli.WriteMode = &f.writeMode
	}

	if cmd.Flags().Changed("update-rev") {
		cli.UpdateRev = &f.updateRev
	}

	params, err := loadParams(cli)
	if err != nil {
		return err
	}

	if err := config.ValidateUpload(params); err != nil {
		return err
	}

	logger := buildLogger(params)

	secret, err := unlockSecret(params, f.askPassword)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(params, f.redirect, logger)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(cmdContext(cmd), logger)
	defer cancel()

	res, err := orch.Run(ctx, uploadRequest(params, secret))
	if err != nil {
		if uploader.IsWriteConflict(err) {
			statusf("The destination already exists. Use --write-mode=overwrite, or update with --update-rev.\n")
		}

		return err
	}

	if flagJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(uploadJSONOutput{
			Name:    res.Name,
			Path:    res.PathDisplay,
			Rev:     res.Rev,
			Size:    res.Size,
			Chunked: res.Chunked,
		})
	}

	statusf("Uploaded %s (%s) to %s\n", res.Name, formatSize(res.Size), res.PathDisplay)
	fmt.Fprintln(stdout, res.Rev)

	return nil
}

// cmdContext returns the command's context, or Background when the command
// runs outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
